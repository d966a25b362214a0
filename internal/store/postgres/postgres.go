package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"tiendaluna/backend/internal/domain"
	"tiendaluna/backend/internal/store"
	"tiendaluna/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if len(order.Lines) == 0 {
		return nil, store.ErrInvalidRequest
	}
	for _, line := range order.Lines {
		if line.ProductID < 1 || line.Quantity < 1 {
			return nil, store.ErrInvalidRequest
		}
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	productIDs := uniqueProductIDs(order.Lines)

	// Lock every referenced product row before checking availability so two
	// concurrent orders for the last unit serialize here.
	stockRows, err := pgTx.QueryContext(ctx, `
		SELECT id, on_hand
		FROM products
		WHERE id = ANY($1)
		FOR UPDATE
	`, productIDs)
	if err != nil {
		return nil, err
	}
	onHand := make(map[int64]int, len(productIDs))
	for stockRows.Next() {
		var id int64
		var qty int
		if err := stockRows.Scan(&id, &qty); err != nil {
			_ = stockRows.Close()
			return nil, err
		}
		onHand[id] = qty
	}
	if err := stockRows.Err(); err != nil {
		_ = stockRows.Close()
		return nil, err
	}
	_ = stockRows.Close()

	requested := make(map[int64]int, len(productIDs))
	for _, line := range order.Lines {
		requested[line.ProductID] += line.Quantity
	}
	for _, productID := range productIDs {
		available, exists := onHand[productID]
		if !exists {
			return nil, fmt.Errorf("%w: unknown product %d", store.ErrInvalidRequest, productID)
		}
		if requested[productID] > available {
			return nil, &store.StockShortfallError{
				ProductID: productID,
				Requested: requested[productID],
				Available: available,
			}
		}
	}

	for _, productID := range productIDs {
		_, err := pgTx.ExecContext(ctx, `
			UPDATE products
			SET on_hand = on_hand - $1, updated_at = now()
			WHERE id = $2
		`, requested[productID], productID)
		if err != nil {
			return nil, err
		}
	}

	invoiceValue, err := allocateSequenceTx(ctx, pgTx, domain.SequenceInvoiceNumber)
	if err != nil {
		return nil, err
	}
	orderValue, err := allocateSequenceTx(ctx, pgTx, domain.SequenceOrderNumber)
	if err != nil {
		return nil, err
	}

	if order.ID == "" {
		order.ID = xid.New("ord")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	order.Number = domain.FormatOrderNumber(orderValue)
	order.SaleID = xid.New("sale")
	order.InvoiceID = xid.New("inv")
	order.InvoiceNumber = domain.FormatInvoiceNumber(invoiceValue)
	order.InvoiceStatus = domain.InvoiceStatusActive

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO sales (id, created_at, total, payment_method, customer_id, cancelled)
		VALUES ($1,$2,$3,$4,$5,false)
	`, order.SaleID, order.CreatedAt, order.Total, order.PaymentMethod, nullInt64(order.CustomerID))
	if err != nil {
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO invoices (id, number, issued_at, total, status, sale_id)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, order.InvoiceID, order.InvoiceNumber, order.CreatedAt, order.Total, domain.InvoiceStatusActive, order.SaleID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("invoice number collision: %w", err)
		}
		return nil, err
	}

	_, err = pgTx.ExecContext(ctx, `
		INSERT INTO orders (
			id, number, customer_id, customer_name, customer_phone, channel,
			payment_method, delivery_address, delivery_window, notes, total,
			status, cancelled, sale_id, invoice_id, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,false,$13,$14,$15,now())
	`, order.ID, order.Number, nullInt64(order.CustomerID), order.CustomerName, order.CustomerPhone,
		order.Channel, order.PaymentMethod, nullIfEmpty(order.DeliveryAddress), nullIfEmpty(order.DeliveryWindow),
		nullIfEmpty(order.Notes), order.Total, order.Status, order.SaleID, order.InvoiceID, order.CreatedAt)
	if err != nil {
		return nil, err
	}

	for i := range order.Lines {
		line := &order.Lines[i]
		if line.ID == "" {
			line.ID = xid.New("line")
		}
		line.OrderID = order.ID
		_, err := pgTx.ExecContext(ctx, `
			INSERT INTO order_lines (id, order_id, product_id, quantity, unit_price, discount, subtotal, color, size)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, line.ID, line.OrderID, line.ProductID, line.Quantity, line.UnitPrice, line.Discount, line.Subtotal,
			nullIfEmpty(line.Color), nullIfEmpty(line.Size))
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	return &order, nil
}

func (s *Store) TransitionOrder(ctx context.Context, orderID string, target string) (*domain.OrderTransition, error) {
	if !domain.KnownStatus(target) {
		return nil, store.ErrInvalidRequest
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	var current string
	var invoiceID string
	var saleID string
	err = pgTx.QueryRowContext(ctx, `
		SELECT status, invoice_id, sale_id
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, orderID).Scan(&current, &invoiceID, &saleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if !domain.CanTransition(current, target) {
		return nil, &store.TransitionError{Current: current, Target: target}
	}

	_, err = pgTx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, cancelled = $3, updated_at = now()
		WHERE id = $1
	`, orderID, target, target == domain.OrderStatusCancelled)
	if err != nil {
		return nil, err
	}

	if domain.TransitionRestocks(current, target) {
		lineRows, err := pgTx.QueryContext(ctx, `
			SELECT product_id, quantity
			FROM order_lines
			WHERE order_id = $1
		`, orderID)
		if err != nil {
			return nil, err
		}
		type restock struct {
			productID int64
			quantity  int
		}
		restocks := make([]restock, 0, 8)
		for lineRows.Next() {
			var r restock
			if err := lineRows.Scan(&r.productID, &r.quantity); err != nil {
				_ = lineRows.Close()
				return nil, err
			}
			restocks = append(restocks, r)
		}
		if err := lineRows.Err(); err != nil {
			_ = lineRows.Close()
			return nil, err
		}
		_ = lineRows.Close()

		for _, r := range restocks {
			_, err := pgTx.ExecContext(ctx, `
				UPDATE products
				SET on_hand = on_hand + $1, updated_at = now()
				WHERE id = $2
			`, r.quantity, r.productID)
			if err != nil {
				return nil, err
			}
		}

		_, err = pgTx.ExecContext(ctx, `
			UPDATE invoices SET status = $2 WHERE id = $1
		`, invoiceID, domain.InvoiceStatusVoided)
		if err != nil {
			return nil, err
		}
		_, err = pgTx.ExecContext(ctx, `
			UPDATE sales SET cancelled = true WHERE id = $1
		`, saleID)
		if err != nil {
			return nil, err
		}
	}

	if err := pgTx.Commit(); err != nil {
		return nil, err
	}

	order, err := s.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &domain.OrderTransition{Order: *order, PreviousStatus: current}, nil
}

func (s *Store) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	return s.findOrder(ctx, "o.id", id)
}

func (s *Store) GetOrderByNumber(ctx context.Context, number string) (*domain.Order, error) {
	return s.findOrder(ctx, "o.number", number)
}

const orderSelectColumns = `
	o.id, o.number, o.customer_id, o.customer_name, o.customer_phone, o.channel,
	o.payment_method, o.delivery_address, o.delivery_window, o.notes, o.total,
	o.status, o.cancelled, o.sale_id, o.invoice_id, i.number, i.status, o.created_at
`

func (s *Store) findOrder(ctx context.Context, column string, value string) (*domain.Order, error) {
	if column != "o.id" && column != "o.number" {
		return nil, fmt.Errorf("unsupported lookup column")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM orders o
		JOIN invoices i ON i.id = o.invoice_id
		WHERE %s = $1
	`, orderSelectColumns, column)

	row := s.db.QueryRowContext(ctx, query, value)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	lines, err := s.loadLines(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Lines = lines

	return order, nil
}

func (s *Store) ListOrdersByCustomer(ctx context.Context, customerID int64, limit int) ([]domain.Order, error) {
	if limit < 1 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM orders o
		JOIN invoices i ON i.id = o.invoice_id
		WHERE o.customer_id = $1
		ORDER BY o.created_at DESC
		LIMIT $2
	`, orderSelectColumns)

	rows, err := s.db.QueryContext(ctx, query, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		lines, err := s.loadLines(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}

	return orders, nil
}

func (s *Store) CountOrdersByStatus(ctx context.Context) (domain.StatusCounts, error) {
	var counts domain.StatusCounts

	rows, err := s.db.QueryContext(ctx, `
		SELECT status, COUNT(*)::bigint
		FROM orders
		GROUP BY status
	`)
	if err != nil {
		return counts, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return counts, err
		}
		switch status {
		case domain.OrderStatusPending:
			counts.Pending = count
		case domain.OrderStatusProcessing:
			counts.Processing = count
		case domain.OrderStatusCompleted:
			counts.Completed = count
		case domain.OrderStatusDelivered:
			counts.Delivered = count
		case domain.OrderStatusCancelled:
			counts.Cancelled = count
		}
		counts.Total += count
	}
	if err := rows.Err(); err != nil {
		return counts, err
	}

	return counts, nil
}

func (s *Store) AllocateSequence(ctx context.Context, name string) (int64, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, err
	}
	defer func() { _ = pgTx.Rollback() }()

	value, err := allocateSequenceTx(ctx, pgTx, name)
	if err != nil {
		return 0, err
	}
	if err := pgTx.Commit(); err != nil {
		return 0, err
	}
	return value, nil
}

func (s *Store) ResyncSequence(ctx context.Context, name string, floor int64) (int64, error) {
	if floor < 0 {
		return 0, store.ErrInvalidRequest
	}

	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return 0, err
	}
	defer func() { _ = pgTx.Rollback() }()

	if err := ensureSequenceRow(ctx, pgTx, name); err != nil {
		return 0, err
	}

	var last int64
	err = pgTx.QueryRowContext(ctx, `
		UPDATE sequence_counters
		SET last_value = GREATEST(last_value, $2), updated_at = now()
		WHERE name = $1
		RETURNING last_value
	`, name, floor).Scan(&last)
	if err != nil {
		return 0, err
	}

	if err := pgTx.Commit(); err != nil {
		return 0, err
	}
	return last, nil
}

// allocateSequenceTx advances the named counter inside the caller's
// transaction. The UPDATE takes a row lock, so concurrent allocators
// serialize here and no value is ever issued twice.
func allocateSequenceTx(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	if err := ensureSequenceRow(ctx, tx, name); err != nil {
		return 0, err
	}

	var value int64
	err := tx.QueryRowContext(ctx, `
		UPDATE sequence_counters
		SET last_value = last_value + 1, updated_at = now()
		WHERE name = $1
		RETURNING last_value
	`, name).Scan(&value)
	if err != nil {
		return 0, err
	}
	return value, nil
}

func ensureSequenceRow(ctx context.Context, tx *sql.Tx, name string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sequence_counters (name, last_value, updated_at)
		VALUES ($1, 0, now())
		ON CONFLICT (name) DO NOTHING
	`, name)
	return err
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor, action, entity_type, entity_id, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.ID, entry.Actor, entry.Action, entry.EntityType, entry.EntityID, entry.Detail, entry.CreatedAt)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, actor, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		WHERE created_at >= $1 AND created_at < $2
		ORDER BY created_at DESC
		LIMIT $3
	`, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]domain.AuditLog, 0, limit)
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(&entry.ID, &entry.Actor, &entry.Action, &entry.EntityType, &entry.EntityID, &entry.Detail, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var customerID sql.NullInt64
	var deliveryAddress sql.NullString
	var deliveryWindow sql.NullString
	var notes sql.NullString

	err := row.Scan(
		&order.ID,
		&order.Number,
		&customerID,
		&order.CustomerName,
		&order.CustomerPhone,
		&order.Channel,
		&order.PaymentMethod,
		&deliveryAddress,
		&deliveryWindow,
		&notes,
		&order.Total,
		&order.Status,
		&order.Cancelled,
		&order.SaleID,
		&order.InvoiceID,
		&order.InvoiceNumber,
		&order.InvoiceStatus,
		&order.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if customerID.Valid {
		id := customerID.Int64
		order.CustomerID = &id
	}
	if deliveryAddress.Valid {
		order.DeliveryAddress = deliveryAddress.String
	}
	if deliveryWindow.Valid {
		order.DeliveryWindow = deliveryWindow.String
	}
	if notes.Valid {
		order.Notes = notes.String
	}
	order.CreatedAt = order.CreatedAt.UTC()

	return &order, nil
}

func (s *Store) loadLines(ctx context.Context, orderID string) ([]domain.OrderLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price, discount, subtotal, color, size
		FROM order_lines
		WHERE order_id = $1
		ORDER BY id ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.OrderLine, 0, 8)
	for rows.Next() {
		var line domain.OrderLine
		var color sql.NullString
		var size sql.NullString
		if err := rows.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.Quantity, &line.UnitPrice, &line.Discount, &line.Subtotal, &color, &size); err != nil {
			return nil, err
		}
		if color.Valid {
			line.Color = color.String
		}
		if size.Valid {
			line.Size = size.String
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func uniqueProductIDs(lines []domain.OrderLine) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.ProductID]; ok {
			continue
		}
		seen[line.ProductID] = struct{}{}
		ids = append(ids, line.ProductID)
	}
	return ids
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullInt64(value *int64) any {
	if value == nil {
		return nil
	}
	return *value
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
