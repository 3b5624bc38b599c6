package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/luiscamargo/farmfresh-backend/pkg/db/models"
	"github.com/luiscamargo/farmfresh-backend/pkg/enums"
	"github.com/luiscamargo/farmfresh-backend/pkg/pagination"
)

// Repository wires together product and inventory persistence helpers.
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

// FindByID loads the product without associations.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs loads multiple products keyed by id.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	out := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// Create inserts the product.
func (r *Repository) Create(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Create(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// Update persists the provided column updates.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// List returns a cursor-paginated page of products matching the filters.
func (r *Repository) List(ctx context.Context, params pagination.Params, filters ListFilters) (*ProductList, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	q := r.db.WithContext(ctx).Model(&models.Product{})
	if filters.FarmerID != nil {
		q = q.Where("farmer_id = ?", *filters.FarmerID)
	}
	if filters.Category != "" {
		q = q.Where("category = ?", filters.Category)
	}
	if filters.Status != nil {
		q = q.Where("status = ?", *filters.Status)
	}
	if filters.Query != "" {
		q = q.Where("name ILIKE ?", "%"+filters.Query+"%")
	}
	if filters.OnlyStock {
		q = q.Where("quantity_available > 0")
	}
	if cursor != nil {
		q = q.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Product
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return nil, err
	}

	list := &ProductList{Products: make([]ProductDTO, 0, len(rows))}
	if len(rows) > limit {
		last := rows[limit-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		rows = rows[:limit]
	}
	for i := range rows {
		list.Products = append(list.Products, *FromModel(&rows[i]))
	}
	return list, nil
}

// InsertHistory appends an inventory ledger row.
func (r *Repository) InsertHistory(ctx context.Context, row *models.InventoryHistory) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// ListHistory returns the ledger for a product, newest first.
func (r *Repository) ListHistory(ctx context.Context, productID uuid.UUID, limit int) ([]models.InventoryHistory, error) {
	var rows []models.InventoryHistory
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC").
		Limit(pagination.NormalizeLimit(limit)).
		Find(&rows).Error
	return rows, err
}

// DecrementStock conditionally subtracts qty and reports whether the row won
// the race. The WHERE clause is the correctness barrier under concurrency.
func (r *Repository) DecrementStock(ctx context.Context, productID uuid.UUID, qty decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE products
		SET quantity_available = quantity_available - ?,
			status = CASE WHEN quantity_available - ? <= 0 AND status = ? THEN ? ELSE status END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND quantity_available >= ?
	`, qty, qty, enums.ProductStatusActive, enums.ProductStatusOutOfStock, productID, qty)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// IncrementStock adds qty back and reactivates listings drained to zero.
func (r *Repository) IncrementStock(ctx context.Context, productID uuid.UUID, qty decimal.Decimal) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE products
		SET quantity_available = quantity_available + ?,
			status = CASE WHEN status = ? THEN ? ELSE status END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, qty, enums.ProductStatusOutOfStock, enums.ProductStatusActive, productID).Error
}
