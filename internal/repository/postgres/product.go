package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/memberbill/memberbill/internal/cache"
	domainProduct "github.com/memberbill/memberbill/internal/domain/product"
	ierr "github.com/memberbill/memberbill/internal/errors"
	"github.com/memberbill/memberbill/internal/logger"
	"github.com/memberbill/memberbill/internal/postgres"
	"github.com/memberbill/memberbill/internal/types"
)

type productRepository struct {
	client postgres.IClient
	log    *logger.Logger
	cache  cache.Cache
}

func NewProductRepository(client postgres.IClient, log *logger.Logger, cache cache.Cache) domainProduct.Repository {
	return &productRepository{client: client, log: log, cache: cache}
}

var productSortable = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"name":       "name",
	"lookup_key": "lookup_key",
	"list_price": "list_price",
}

const productInsertQuery = `
	INSERT INTO products (
		id, lookup_key, name, description, product_type, category, list_price, member_price,
		setup_fee, additional_member_discount_pct, tax_rate_pct, currency,
		billing_period, billing_period_count, revenue_recognition,
		grace_period_days, auto_renew, reminder_schedule,
		metadata, environment_id, tenant_id, status, created_at, updated_at, created_by, updated_by
	) VALUES (
		:id, :lookup_key, :name, :description, :product_type, :category, :list_price, :member_price,
		:setup_fee, :additional_member_discount_pct, :tax_rate_pct, :currency,
		:billing_period, :billing_period_count, :revenue_recognition,
		:grace_period_days, :auto_renew, :reminder_schedule,
		:metadata, :environment_id, :tenant_id, :status, :created_at, :updated_at, :created_by, :updated_by
	)`

const productUpdateQuery = `
	UPDATE products SET
		lookup_key = :lookup_key,
		name = :name,
		description = :description,
		product_type = :product_type,
		category = :category,
		list_price = :list_price,
		member_price = :member_price,
		setup_fee = :setup_fee,
		additional_member_discount_pct = :additional_member_discount_pct,
		tax_rate_pct = :tax_rate_pct,
		currency = :currency,
		billing_period = :billing_period,
		billing_period_count = :billing_period_count,
		revenue_recognition = :revenue_recognition,
		grace_period_days = :grace_period_days,
		auto_renew = :auto_renew,
		reminder_schedule = :reminder_schedule,
		metadata = :metadata,
		status = :status,
		updated_at = :updated_at,
		updated_by = :updated_by
	WHERE id = :id AND tenant_id = :tenant_id`

func (r *productRepository) Create(ctx context.Context, p *domainProduct.Product) error {
	span := StartRepositorySpan(ctx, "product", "create", map[string]interface{}{
		"product_id": p.ID,
		"lookup_key": p.LookupKey,
		"tenant_id":  p.TenantID,
	})
	defer FinishSpan(span)

	r.log.Debugw("creating product",
		"product_id", p.ID,
		"lookup_key", p.LookupKey,
		"tenant_id", p.TenantID,
	)

	if p.EnvironmentID == "" {
		p.EnvironmentID = types.GetEnvironmentID(ctx)
	}

	if _, err := r.client.Querier(ctx).NamedExec(productInsertQuery, p); err != nil {
		SetSpanError(span, err)
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ierr.WithError(err).
				WithHint("A product with this lookup key already exists").
				WithReportableDetails(map[string]any{
					"product_id": p.ID,
					"lookup_key": p.LookupKey,
				}).
				Mark(ierr.ErrAlreadyExists)
		}
		return ierr.WithError(err).
			WithHint("Failed to create product").
			WithReportableDetails(map[string]any{
				"product_id": p.ID,
			}).
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return nil
}

func (r *productRepository) Get(ctx context.Context, id string) (*domainProduct.Product, error) {
	span := StartRepositorySpan(ctx, "product", "get", map[string]interface{}{
		"product_id": id,
	})
	defer FinishSpan(span)

	if cached := r.GetCache(ctx, id); cached != nil {
		SetSpanSuccess(span)
		return cached, nil
	}

	query, args, err := scopedQuery(ctx, "SELECT * FROM products").
		where("id = :id", "id", id).
		build()
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to build product query").
			Mark(ierr.ErrDatabase)
	}

	var p domainProduct.Product
	if err := r.client.Querier(ctx).GetContext(ctx, &p, query, args...); err != nil {
		SetSpanError(span, err)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithError(err).
				WithHint("Product not found").
				WithReportableDetails(map[string]any{
					"product_id": id,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get product").
			Mark(ierr.ErrDatabase)
	}

	r.SetCache(ctx, &p)
	SetSpanSuccess(span)
	return &p, nil
}

func (r *productRepository) GetByLookupKey(ctx context.Context, lookupKey string) (*domainProduct.Product, error) {
	span := StartRepositorySpan(ctx, "product", "get_by_lookup_key", map[string]interface{}{
		"lookup_key": lookupKey,
	})
	defer FinishSpan(span)

	if cached := r.GetCache(ctx, lookupKey); cached != nil {
		SetSpanSuccess(span)
		return cached, nil
	}

	query, args, err := scopedQuery(ctx, "SELECT * FROM products").
		where("lookup_key = :lookup_key", "lookup_key", lookupKey).
		whereExpr("status != 'deleted'").
		build()
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to build product query").
			Mark(ierr.ErrDatabase)
	}

	var p domainProduct.Product
	if err := r.client.Querier(ctx).GetContext(ctx, &p, query, args...); err != nil {
		SetSpanError(span, err)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.WithError(err).
				WithHint("Product not found").
				WithReportableDetails(map[string]any{
					"lookup_key": lookupKey,
				}).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get product by lookup key").
			Mark(ierr.ErrDatabase)
	}

	r.SetCache(ctx, &p)
	SetSpanSuccess(span)
	return &p, nil
}

func (r *productRepository) List(ctx context.Context, filter *types.ProductFilter) ([]*domainProduct.Product, error) {
	if filter == nil {
		filter = types.NewProductFilter()
	}

	span := StartRepositorySpan(ctx, "product", "list", map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
	})
	defer FinishSpan(span)

	q := scopedQuery(ctx, "SELECT * FROM products")
	r.applyFilter(q, filter)
	query, args, err := q.
		applyStatus(filter).
		applyTimeRange(filter.TimeRangeFilter, "created_at").
		applyPagination(filter, productSortable).
		build()
	if err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to build product query").
			Mark(ierr.ErrDatabase)
	}

	var products []*domainProduct.Product
	if err := r.client.Querier(ctx).SelectContext(ctx, &products, query, args...); err != nil {
		SetSpanError(span, err)
		return nil, ierr.WithError(err).
			WithHint("Failed to list products").
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return products, nil
}

func (r *productRepository) Count(ctx context.Context, filter *types.ProductFilter) (int, error) {
	if filter == nil {
		filter = types.NewProductFilter()
	}

	span := StartRepositorySpan(ctx, "product", "count", map[string]interface{}{
		"tenant_id": types.GetTenantID(ctx),
	})
	defer FinishSpan(span)

	q := scopedQuery(ctx, "SELECT COUNT(*) FROM products")
	r.applyFilter(q, filter)
	query, args, err := q.
		applyStatus(filter).
		applyTimeRange(filter.TimeRangeFilter, "created_at").
		build()
	if err != nil {
		SetSpanError(span, err)
		return 0, ierr.WithError(err).
			WithHint("Failed to build product query").
			Mark(ierr.ErrDatabase)
	}

	var count int
	if err := r.client.Querier(ctx).GetContext(ctx, &count, query, args...); err != nil {
		SetSpanError(span, err)
		return 0, ierr.WithError(err).
			WithHint("Failed to count products").
			Mark(ierr.ErrDatabase)
	}
	SetSpanSuccess(span)
	return count, nil
}

func (r *productRepository) Update(ctx context.Context, p *domainProduct.Product) error {
	span := StartRepositorySpan(ctx, "product", "update", map[string]interface{}{
		"product_id": p.ID,
		"tenant_id":  p.TenantID,
	})
	defer FinishSpan(span)

	r.log.Debugw("updating product",
		"product_id", p.ID,
		"tenant_id", p.TenantID,
	)

	p.UpdatedAt = time.Now().UTC()
	p.UpdatedBy = types.GetUserID(ctx)

	result, err := r.client.Querier(ctx).NamedExec(productUpdateQuery, p)
	if err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Failed to update product").
			WithReportableDetails(map[string]any{
				"product_id": p.ID,
			}).
			Mark(ierr.ErrDatabase)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ierr.NewError("product not found").
			WithHint("Product not found").
			WithReportableDetails(map[string]any{
				"product_id": p.ID,
			}).
			Mark(ierr.ErrNotFound)
	}

	r.DeleteCache(ctx, p)
	SetSpanSuccess(span)
	return nil
}

func (r *productRepository) Delete(ctx context.Context, id string) error {
	span := StartRepositorySpan(ctx, "product", "delete", map[string]interface{}{
		"product_id": id,
	})
	defer FinishSpan(span)

	r.log.Debugw("deleting product",
		"product_id", id,
		"tenant_id", types.GetTenantID(ctx),
	)

	p, err := r.Get(ctx, id)
	if err != nil {
		SetSpanError(span, err)
		return err
	}

	query := `
		UPDATE products SET
			status = :status,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND tenant_id = :tenant_id`

	_, err = r.client.Querier(ctx).NamedExec(query, map[string]interface{}{
		"id":         id,
		"tenant_id":  types.GetTenantID(ctx),
		"status":     types.StatusDeleted,
		"updated_at": time.Now().UTC(),
		"updated_by": types.GetUserID(ctx),
	})
	if err != nil {
		SetSpanError(span, err)
		return ierr.WithError(err).
			WithHint("Failed to delete product").
			WithReportableDetails(map[string]any{
				"product_id": id,
			}).
			Mark(ierr.ErrDatabase)
	}

	r.DeleteCache(ctx, p)
	SetSpanSuccess(span)
	return nil
}

func (r *productRepository) applyFilter(q *queryBuilder, filter *types.ProductFilter) {
	if len(filter.ProductIDs) > 0 {
		q.where("id IN (:product_ids)", "product_ids", filter.ProductIDs)
	}
	if len(filter.LookupKeys) > 0 {
		q.where("lookup_key IN (:lookup_keys)", "lookup_keys", filter.LookupKeys)
	}
	if len(filter.ProductTypes) > 0 {
		q.where("product_type IN (:product_types)", "product_types", filter.ProductTypes)
	}
	if len(filter.Categories) > 0 {
		q.where("category IN (:categories)", "categories", filter.Categories)
	}
	if len(filter.BillingPeriods) > 0 {
		q.where("billing_period IN (:billing_periods)", "billing_periods", filter.BillingPeriods)
	}
}

func (r *productRepository) SetCache(ctx context.Context, p *domainProduct.Product) {
	span := cache.StartCacheSpan(ctx, "product", "set", map[string]interface{}{
		"product_id": p.ID,
	})
	defer cache.FinishSpan(span)

	tenantID := types.GetTenantID(ctx)
	environmentID := types.GetEnvironmentID(ctx)

	// Set both ID and lookup key based cache entries
	idKey := cache.GenerateKey(cache.PrefixProduct, tenantID, environmentID, p.ID)
	r.cache.Set(ctx, idKey, p, cache.ExpiryDefaultInMemory)
	if p.LookupKey != "" {
		lookupKey := cache.GenerateKey(cache.PrefixProduct, tenantID, environmentID, p.LookupKey)
		r.cache.Set(ctx, lookupKey, p, cache.ExpiryDefaultInMemory)
	}
}

func (r *productRepository) GetCache(ctx context.Context, key string) *domainProduct.Product {
	span := cache.StartCacheSpan(ctx, "product", "get", map[string]interface{}{
		"product_id": key,
	})
	defer cache.FinishSpan(span)

	cacheKey := cache.GenerateKey(cache.PrefixProduct, types.GetTenantID(ctx), types.GetEnvironmentID(ctx), key)
	if value, found := r.cache.Get(ctx, cacheKey); found {
		if p, ok := value.(*domainProduct.Product); ok {
			return p
		}
	}
	return nil
}

func (r *productRepository) DeleteCache(ctx context.Context, p *domainProduct.Product) {
	span := cache.StartCacheSpan(ctx, "product", "delete", map[string]interface{}{
		"product_id": p.ID,
	})
	defer cache.FinishSpan(span)

	tenantID := types.GetTenantID(ctx)
	environmentID := types.GetEnvironmentID(ctx)

	r.cache.Delete(ctx, cache.GenerateKey(cache.PrefixProduct, tenantID, environmentID, p.ID))
	if p.LookupKey != "" {
		r.cache.Delete(ctx, cache.GenerateKey(cache.PrefixProduct, tenantID, environmentID, p.LookupKey))
	}
}
