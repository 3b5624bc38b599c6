package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/luiscamargo/farmfresh-backend/pkg/db/models"
	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
	"github.com/luiscamargo/farmfresh-backend/pkg/pagination"
)

// Repository owns order, order item and status history persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts the order along with its nested items.
func (r *Repository) Create(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

// FindByID loads the order with items and history.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByNumber resolves the customer-facing order number.
func (r *Repository) FindByNumber(ctx context.Context, number string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		First(&order, "order_number = ?", number).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByPaymentIntent resolves the order a provider intent belongs to.
func (r *Repository) FindByPaymentIntent(ctx context.Context, intentID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		First(&order, "payment_intent_id = ?", intentID).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Update applies the column map to the order.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdateIfPaymentStatus applies the column map only while the order still has
// the expected payment status. Returns whether the guarded update won.
func (r *Repository) UpdateIfPaymentStatus(ctx context.Context, id uuid.UUID, expected enums.PaymentStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ListByBuyer pages the buyer's orders newest first.
func (r *Repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	query := r.db.WithContext(ctx).
		Preload("Items").
		Where("buyer_id = ?", buyerID)
	return r.pageOrders(query, params)
}

// ListByFarmer pages orders that contain at least one of the farmer's items.
func (r *Repository) ListByFarmer(ctx context.Context, farmerID uuid.UUID, params pagination.Params) ([]models.Order, string, error) {
	query := r.db.WithContext(ctx).
		Preload("Items", "farmer_id = ?", farmerID).
		Where("id IN (?)", r.db.
			Model(&models.OrderItem{}).
			Select("order_id").
			Where("farmer_id = ?", farmerID))
	return r.pageOrders(query, params)
}

func (r *Repository) pageOrders(query *gorm.DB, params pagination.Params) ([]models.Order, string, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	limit := pagination.NormalizeLimit(params.Limit)
	var rows []models.Order
	if err := query.Order("created_at DESC, id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, "", err
	}

	next := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, next, nil
}

// FindItem loads one order item.
func (r *Repository) FindItem(ctx context.Context, orderID, itemID uuid.UUID) (*models.OrderItem, error) {
	var item models.OrderItem
	err := r.db.WithContext(ctx).
		First(&item, "id = ? AND order_id = ?", itemID, orderID).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListItems loads every item on the order.
func (r *Repository) ListItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// ListFarmerItems loads the farmer's items on the order.
func (r *Repository) ListFarmerItems(ctx context.Context, orderID, farmerID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND farmer_id = ?", orderID, farmerID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateItem applies the column map to the order item.
func (r *Repository) UpdateItem(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// InsertStatusHistory appends an audit row.
func (r *Repository) InsertStatusHistory(ctx context.Context, row *models.OrderStatusHistory) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// farmerItemRow backs the analytics aggregates.
type farmerItemRow struct {
	OrderID           uuid.UUID
	OrderStatus       enums.OrderStatus
	FulfillmentStatus enums.FulfillmentStatus
	LineTotal         string
}

// FarmerItemStats pulls the raw per-item rows for a farmer inside the window.
// Aggregation happens in the service so decimal math stays exact.
func (r *Repository) FarmerItemStats(ctx context.Context, farmerID uuid.UUID, from, to *time.Time) ([]farmerItemRow, error) {
	query := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Select("order_items.order_id, orders.status AS order_status, order_items.fulfillment_status, order_items.line_total").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("order_items.farmer_id = ?", farmerID)
	if from != nil {
		query = query.Where("orders.created_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("orders.created_at < ?", *to)
	}

	var rows []farmerItemRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
