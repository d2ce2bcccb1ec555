package domain

import "github.com/shopspring/decimal"

// Правила сверки товара. Функции чистые: принимают товар по значению и
// возвращают новое состояние, не обращаясь к хранилищу.

// PriceDirection задаёт направление процентного изменения цены.
type PriceDirection int

const (
	PriceIncrease PriceDirection = iota
	PriceDecrease
)

var hundred = decimal.NewFromInt(100)

// ApplyStockDelta добавляет delta к складскому остатку.
func ApplyStockDelta(p Product, delta int) Product {
	p.StockQuantity += delta
	return p
}

// ApplySalesDelta добавляет delta к счётчику продаж.
func ApplySalesDelta(p Product, delta int) Product {
	p.SalesCount += delta
	return p
}

// ApplyPercentagePriceChange меняет цену на percentage процентов в заданную сторону.
// Процент не ограничивается: диапазон проверяет вызывающий сервис.
func ApplyPercentagePriceChange(p Product, percentage decimal.Decimal, direction PriceDirection) Product {
	change := p.Price.Mul(percentage).Div(hundred)
	if direction == PriceDecrease {
		p.Price = p.Price.Sub(change)
	} else {
		p.Price = p.Price.Add(change)
	}
	return p
}

// Archive обнуляет остаток и цену и помечает товар архивным.
func Archive(p Product) Product {
	p.StockQuantity = 0
	p.Price = decimal.Zero
	p.IsArchived = true
	return p
}

// DiscontinueIfBelowThreshold снимает товар с продажи, если продаж меньше threshold.
// Второе значение сообщает, сработало ли правило. Обратного перехода нет.
func DiscontinueIfBelowThreshold(p Product, threshold int) (Product, bool) {
	if p.SalesCount >= threshold {
		return p, false
	}
	p.IsDiscontinued = true
	return p, true
}

// StockPricingRule описывает корректировку цены в зависимости от остатка.
type StockPricingRule struct {
	LowStockThreshold  int
	IncreasePercentage decimal.Decimal
	HighStockThreshold int
	DecreasePercentage decimal.Decimal
}

// ApplyStockPricing поднимает цену при низком остатке и снижает при высоком.
// Если остаток между порогами, товар не меняется.
func ApplyStockPricing(p Product, rule StockPricingRule) Product {
	switch {
	case p.StockQuantity <= rule.LowStockThreshold:
		return ApplyPercentagePriceChange(p, rule.IncreasePercentage, PriceIncrease)
	case p.StockQuantity >= rule.HighStockThreshold:
		return ApplyPercentagePriceChange(p, rule.DecreasePercentage, PriceDecrease)
	default:
		return p
	}
}
