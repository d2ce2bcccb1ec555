package postgres

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderstream/internal/domain"
)

func TestProductRepository_CRUD(t *testing.T) {
	store := openTestStore(t)
	repo := NewProductRepository(store)

	created, err := repo.Add(domain.Product{Name: "Keyboard", Price: decimal.RequireFromString("49.90"), StockQuantity: 10})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := repo.Get(created.ID)
	require.NoError(t, err)
	require.Equal(t, "Keyboard", got.Name)
	require.True(t, decimal.RequireFromString("49.9").Equal(got.Price), "price %s", got.Price)

	got.StockQuantity = 0
	got.IsArchived = true
	require.NoError(t, repo.Update(got))

	updated, err := repo.Get(created.ID)
	require.NoError(t, err)
	require.Equal(t, 0, updated.StockQuantity)
	require.True(t, updated.IsArchived)
	require.Equal(t, got.Version+1, updated.Version)

	all, err := repo.List()
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, repo.Delete(created.ID))
	_, err = repo.Get(created.ID)
	require.ErrorIs(t, err, domain.ErrProductNotFound)
	require.ErrorIs(t, repo.Delete(created.ID), domain.ErrProductNotFound)
	require.ErrorIs(t, repo.Update(got), domain.ErrProductNotFound)
}

func TestProductRepository_OptimisticLocking(t *testing.T) {
	store := openTestStore(t, WithOptimisticLocking())
	repo := NewProductRepository(store)

	p, err := repo.Add(domain.Product{Name: "Mouse", Price: decimal.NewFromInt(10), StockQuantity: 1})
	require.NoError(t, err)

	stale := p
	p.StockQuantity = 5
	require.NoError(t, repo.Update(p))

	stale.StockQuantity = 7
	require.ErrorIs(t, repo.Update(stale), domain.ErrProductVersionConflict)
}

func TestProductRepository_KeepsFullPricePrecision(t *testing.T) {
	store := openTestStore(t)
	repo := NewProductRepository(store)

	created, err := repo.Add(domain.Product{Name: "Lamp", Price: decimal.RequireFromString("177.1561"), StockQuantity: 1})
	require.NoError(t, err)

	got, err := repo.Get(created.ID)
	require.NoError(t, err)
	got = domain.ApplyPercentagePriceChange(got, decimal.NewFromInt(10), domain.PriceIncrease)
	require.True(t, decimal.RequireFromString("194.87171").Equal(got.Price), "price %s", got.Price)
	require.NoError(t, repo.Update(got))

	updated, err := repo.Get(created.ID)
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("194.87171").Equal(updated.Price), "price %s", updated.Price)
}

func TestOrderRepository_KeepsFullAmountPrecision(t *testing.T) {
	store := openTestStore(t)
	repo := NewOrderRepository(store)

	price := decimal.RequireFromString("0.00001")
	order, err := repo.Add(domain.Order{
		CustomerID:  3,
		Lines:       []domain.OrderLine{{ProductID: "p", Price: price, Quantity: 1}},
		TotalAmount: price,
		Status:      domain.OrderStatusPending,
	})
	require.NoError(t, err)

	got, err := repo.Get(order.ID)
	require.NoError(t, err)
	require.True(t, price.Equal(got.Lines[0].Price), "line price %s", got.Lines[0].Price)
	require.True(t, price.Equal(got.TotalAmount), "total %s", got.TotalAmount)
	require.True(t, got.TotalAmount.IsPositive())
}

func TestOrderRepository_CRUD(t *testing.T) {
	store := openTestStore(t)
	repo := NewOrderRepository(store)

	now := time.Now().UTC().Round(time.Microsecond)
	lines := []domain.OrderLine{
		{ProductID: "p-2", Price: decimal.RequireFromString("12.50"), Quantity: 2},
		{ProductID: "p-1", Price: decimal.NewFromInt(100), Quantity: 1},
	}
	first, err := repo.Add(domain.Order{
		CustomerID:  7,
		Lines:       lines,
		TotalAmount: decimal.NewFromInt(125),
		Status:      domain.OrderStatusPending,
		OrderDate:   now.Add(-time.Minute),
	})
	require.NoError(t, err)
	second, err := repo.Add(domain.Order{
		CustomerID:  8,
		Lines:       lines[:1],
		TotalAmount: decimal.NewFromInt(25),
		Status:      domain.OrderStatusPending,
		OrderDate:   now,
	})
	require.NoError(t, err)

	got, err := repo.Get(first.ID)
	require.NoError(t, err)
	require.Equal(t, int64(7), got.CustomerID)
	require.Len(t, got.Lines, 2)
	require.Equal(t, "p-2", got.Lines[0].ProductID, "lines keep insertion order")
	require.True(t, decimal.RequireFromString("12.5").Equal(got.Lines[0].Price))

	all, err := repo.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, first.ID, all[0].ID)
	require.Len(t, all[1].Lines, 1)

	got.Status = domain.OrderStatusShipped
	got.Lines = []domain.OrderLine{{ProductID: "p-3", Price: decimal.NewFromInt(5), Quantity: 3}}
	got.TotalAmount = decimal.NewFromInt(15)
	require.NoError(t, repo.Update(got))

	updated, err := repo.Get(first.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusShipped, updated.Status)
	require.Len(t, updated.Lines, 1)
	require.Equal(t, "p-3", updated.Lines[0].ProductID)
	require.Equal(t, got.Version+1, updated.Version)

	require.NoError(t, repo.Delete(second.ID))
	_, err = repo.Get(second.ID)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
	require.ErrorIs(t, repo.Delete(second.ID), domain.ErrOrderNotFound)
	require.ErrorIs(t, repo.Update(domain.Order{ID: second.ID, Status: domain.OrderStatusPending}), domain.ErrOrderNotFound)
}

func TestOrderRepository_OptimisticLocking(t *testing.T) {
	store := openTestStore(t, WithOptimisticLocking())
	repo := NewOrderRepository(store)

	order, err := repo.Add(domain.Order{
		CustomerID:  1,
		Lines:       []domain.OrderLine{{ProductID: "p", Price: decimal.NewFromInt(1), Quantity: 1}},
		TotalAmount: decimal.NewFromInt(1),
		Status:      domain.OrderStatusPending,
	})
	require.NoError(t, err)

	stale := order
	order.Status = domain.OrderStatusCancelled
	require.NoError(t, repo.Update(order))

	stale.Status = domain.OrderStatusCompleted
	require.ErrorIs(t, repo.Update(stale), domain.ErrOrderVersionConflict)

	got, err := repo.Get(order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, got.Status)
	require.Len(t, got.Lines, 1, "failed update must not touch lines")
}
