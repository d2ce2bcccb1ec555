package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Product описывает товар каталога вместе со складскими и продажными счётчиками.
type Product struct {
	ID             string
	Name           string
	Price          decimal.Decimal
	StockQuantity  int
	SalesCount     int
	IsArchived     bool
	IsDiscontinued bool
	// Version используется только в режиме optimistic locking.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProductDraft — входные данные для создания и обновления товара.
type ProductDraft struct {
	Name          string
	Price         decimal.Decimal
	StockQuantity int
}

// ValidateForCreate проверяет правила создания товара: имя, цена > 0, остаток > 0.
func (d ProductDraft) ValidateForCreate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrNameRequired
	}
	if !d.Price.IsPositive() {
		return ErrPriceInvalid
	}
	if d.StockQuantity <= 0 {
		return ErrStockInvalid
	}
	return nil
}

// ValidateForUpdate проверяет правила обновления: остаток может быть нулевым.
func (d ProductDraft) ValidateForUpdate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrNameRequired
	}
	if !d.Price.IsPositive() {
		return ErrPriceInvalid
	}
	if d.StockQuantity < 0 {
		return ErrStockInvalid
	}
	return nil
}

// OutOfStock сообщает, закончился ли товар на складе.
func (p Product) OutOfStock() bool {
	return p.StockQuantity == 0
}
