package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/orderstream/internal/domain"
)

const orderColumns = `id, customer_id, total_amount, status, order_date, version, updated_at`

type orderRepository struct {
	db   *sql.DB
	opts options
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
// Заказ и его позиции пишутся в одной транзакции.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{db: store.DB(), opts: store.opts}
}

func (r *orderRepository) Add(order domain.Order) (_ domain.Order, err error) {
	ctx, cancel := opContext()
	defer cancel()

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.OrderDate.IsZero() {
		order.OrderDate = time.Now().UTC()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.OrderDate
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`,
		order.ID, order.CustomerID, order.TotalAmount, string(order.Status),
		order.OrderDate, order.Version, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Order{}, domain.ErrOrderVersionConflict
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	if err = insertLines(ctx, tx, order.ID, order.Lines); err != nil {
		return domain.Order{}, err
	}
	if err = tx.Commit(); err != nil {
		return domain.Order{}, fmt.Errorf("commit add order: %w", err)
	}
	return order, nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := opContext()
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("select order: %w", err)
	}

	lines, err := r.loadLines(ctx, `WHERE order_id = $1`, id)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines[order.ID]
	return order, nil
}

func (r *orderRepository) List() ([]domain.Order, error) {
	ctx, cancel := opContext()
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY order_date, id`)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	lines, err := r.loadLines(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
	}
	return orders, nil
}

// Update перезаписывает заказ и полностью заменяет его позиции.
func (r *orderRepository) Update(order domain.Order) (err error) {
	ctx, cancel := opContext()
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `
		UPDATE orders
		SET customer_id = $2,
		    total_amount = $3,
		    status = $4,
		    order_date = $5,
		    version = version + 1,
		    updated_at = $6
		WHERE id = $1`
	args := []any{
		order.ID, order.CustomerID, order.TotalAmount, string(order.Status),
		order.OrderDate, updatedAt(order.UpdatedAt),
	}
	if r.opts.optimisticLocking {
		query += ` AND version = $7`
		args = append(args, order.Version)
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, existsErr := rowExists(ctx, tx, `SELECT 1 FROM orders WHERE id = $1`, order.ID)
		switch {
		case existsErr != nil:
			err = existsErr
		case !exists:
			err = domain.ErrOrderNotFound
		default:
			err = domain.ErrOrderVersionConflict
		}
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM order_lines WHERE order_id = $1`, order.ID); err != nil {
		return fmt.Errorf("delete order lines: %w", err)
	}
	if err = insertLines(ctx, tx, order.ID, order.Lines); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit update order: %w", err)
	}
	return nil
}

func (r *orderRepository) Delete(id string) error {
	ctx, cancel := opContext()
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// loadLines читает позиции и группирует их по заказу.
func (r *orderRepository) loadLines(ctx context.Context, where string, args ...any) (map[string][]domain.OrderLine, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, product_id, price, quantity
		FROM order_lines
		`+where+`
		ORDER BY order_id, position
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}
	defer rows.Close()

	lines := make(map[string][]domain.OrderLine)
	for rows.Next() {
		var (
			orderID string
			line    domain.OrderLine
		)
		if err := rows.Scan(&orderID, &line.ProductID, &line.Price, &line.Quantity); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines[orderID] = append(lines[orderID], line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order lines: %w", err)
	}
	return lines, nil
}

func insertLines(ctx context.Context, tx *sql.Tx, orderID string, lines []domain.OrderLine) error {
	for i, line := range lines {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, position, product_id, price, quantity)
			VALUES ($1,$2,$3,$4,$5)
		`, orderID, i, line.ProductID, line.Price, line.Quantity); err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o      domain.Order
		status string
	)
	if err := row.Scan(&o.ID, &o.CustomerID, &o.TotalAmount, &status, &o.OrderDate, &o.Version, &o.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	o.Status = domain.OrderStatus(status)
	return o, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
