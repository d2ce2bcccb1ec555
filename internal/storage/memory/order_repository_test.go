package memory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderstream/internal/domain"
	"github.com/vladislavdragonenkov/orderstream/internal/storage/memory"
)

func newOrder() domain.Order {
	lines := []domain.OrderLine{
		{ProductID: "p-1", Price: decimal.NewFromInt(100), Quantity: 5},
	}
	return domain.Order{
		CustomerID:  1,
		Status:      domain.OrderStatusPending,
		Lines:       lines,
		TotalAmount: domain.CalculateTotal(lines),
		OrderDate:   time.Now().UTC(),
	}
}

func TestOrderRepository_AddGet(t *testing.T) {
	repo := memory.NewOrderRepository()

	saved, err := repo.Add(newOrder())
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if saved.ID == "" {
		t.Fatal("expected generated id")
	}

	stored, err := repo.Get(saved.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.ID != saved.ID || !stored.TotalAmount.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("unexpected stored order: %+v", stored)
	}

	if _, err := repo.Get("missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_AddDuplicateID(t *testing.T) {
	repo := memory.NewOrderRepository()
	order := newOrder()
	order.ID = "order-1"

	if _, err := repo.Add(order); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := repo.Add(order); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}
}

func TestOrderRepository_GetReturnsCopy(t *testing.T) {
	repo := memory.NewOrderRepository()
	saved, err := repo.Add(newOrder())
	if err != nil {
		t.Fatalf("add failed: %v", err)
	}

	first, _ := repo.Get(saved.ID)
	first.Lines[0].Quantity = 99

	second, _ := repo.Get(saved.ID)
	if second.Lines[0].Quantity != 5 {
		t.Fatalf("stored lines were mutated through a returned copy: %d", second.Lines[0].Quantity)
	}
}

func TestOrderRepository_ListAndDelete(t *testing.T) {
	repo := memory.NewOrderRepository()
	a, _ := repo.Add(newOrder())
	if _, err := repo.Add(newOrder()); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	orders, err := repo.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(orders))
	}

	if err := repo.Delete(a.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := repo.Delete(a.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound on second delete, got %v", err)
	}
}

func TestOrderRepository_UpdateWithoutLockingOverwrites(t *testing.T) {
	repo := memory.NewOrderRepository()
	saved, _ := repo.Add(newOrder())

	stale, _ := repo.Get(saved.ID)
	fresh, _ := repo.Get(saved.ID)

	fresh.Status = domain.OrderStatusCancelled
	if err := repo.Update(fresh); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	// Последняя запись выигрывает: так ведёт себя хранилище без блокировок.
	stale.Status = domain.OrderStatusCompleted
	if err := repo.Update(stale); err != nil {
		t.Fatalf("stale update must succeed without locking: %v", err)
	}

	stored, _ := repo.Get(saved.ID)
	if stored.Status != domain.OrderStatusCompleted {
		t.Fatalf("expected last write to win, got %s", stored.Status)
	}
	if stored.Version != 2 {
		t.Fatalf("expected version 2, got %d", stored.Version)
	}
}

func TestOrderRepository_UpdateWithOptimisticLocking(t *testing.T) {
	repo := memory.NewOrderRepository(memory.WithOptimisticLocking())
	saved, _ := repo.Add(newOrder())

	stale, _ := repo.Get(saved.ID)
	fresh, _ := repo.Get(saved.ID)

	fresh.Status = domain.OrderStatusCancelled
	if err := repo.Update(fresh); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	stale.Status = domain.OrderStatusCompleted
	if err := repo.Update(stale); !errors.Is(err, domain.ErrOrderVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}

	if err := repo.Update(domain.Order{ID: "missing"}); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
