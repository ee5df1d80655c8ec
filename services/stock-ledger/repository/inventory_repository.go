package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/KallebyX/terman-os-sub000/services/stock-ledger/models"
)

var (
	ErrNotFound          = errors.New("inventory record not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStaleReservation  = errors.New("reservation already settled")
)

// InventoryRepository is the data access layer for stock counts and
// reservation records.
type InventoryRepository interface {
	Get(ctx context.Context, productID string) (*models.Inventory, error)
	Put(ctx context.Context, inv *models.Inventory) error
	AddStock(ctx context.Context, productID string, quantity, threshold int) error
	Hold(ctx context.Context, productID string, quantity int) error
	Unhold(ctx context.Context, productID string, quantity int) error
	Deduct(ctx context.Context, productID string, quantity int) error

	PutReservation(ctx context.Context, res *models.Reservation) error
	GetReservation(ctx context.Context, reservationID string) (*models.Reservation, error)
	SettleReservation(ctx context.Context, reservationID string, to models.ReservationStatus) error
}

// DynamoInventoryRepository keeps counts and reservations in two DynamoDB
// tables. All count mutations are conditional updates so concurrent
// terminals cannot oversell.
type DynamoInventoryRepository struct {
	client           *dynamodb.Client
	table            string
	reservationTable string
}

func NewDynamoInventoryRepository(client *dynamodb.Client, table, reservationTable string) *DynamoInventoryRepository {
	return &DynamoInventoryRepository{
		client:           client,
		table:            table,
		reservationTable: reservationTable,
	}
}

type ddbInventory struct {
	ProductID string `dynamodbav:"product_id"`
	Available int    `dynamodbav:"available"`
	Reserved  int    `dynamodbav:"reserved"`
	Threshold int    `dynamodbav:"min_threshold"`
	UpdatedAt string `dynamodbav:"updated_at"`
}

type ddbReserveLine struct {
	ProductID string `dynamodbav:"product_id"`
	Quantity  int    `dynamodbav:"quantity"`
}

type ddbReservation struct {
	ReservationID string           `dynamodbav:"reservation_id"`
	OrderID       string           `dynamodbav:"order_id"`
	Items         []ddbReserveLine `dynamodbav:"items"`
	Status        string           `dynamodbav:"status"`
	CreatedAt     string           `dynamodbav:"created_at"`
	ExpiresAt     int64            `dynamodbav:"expires_at"` // epoch seconds, DynamoDB TTL attribute
}

func (r *DynamoInventoryRepository) Get(ctx context.Context, productID string) (*models.Inventory, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"product_id": productID})
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}

	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &r.table,
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb GetItem failed: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var di ddbInventory
	if err := attributevalue.UnmarshalMap(out.Item, &di); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}

	inv := &models.Inventory{
		ProductID: di.ProductID,
		Available: di.Available,
		Reserved:  di.Reserved,
		Threshold: di.Threshold,
	}
	if t, err := time.Parse(time.RFC3339, di.UpdatedAt); err == nil {
		inv.UpdatedAt = t
	}
	return inv, nil
}

func (r *DynamoInventoryRepository) Put(ctx context.Context, inv *models.Inventory) error {
	di := ddbInventory{
		ProductID: inv.ProductID,
		Available: inv.Available,
		Reserved:  inv.Reserved,
		Threshold: inv.Threshold,
		UpdatedAt: inv.UpdatedAt.Format(time.RFC3339),
	}

	item, err := attributevalue.MarshalMap(di)
	if err != nil {
		return fmt.Errorf("marshal inventory: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &r.table,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb PutItem failed: %w", err)
	}
	return nil
}

// AddStock tops up availability for a product that already has a record.
func (r *DynamoInventoryRepository) AddStock(ctx context.Context, productID string, quantity, threshold int) error {
	key, err := attributevalue.MarshalMap(map[string]string{"product_id": productID})
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}

	expr := "SET #avail = #avail + :qty, min_threshold = :thr, updated_at = :now"
	condExpr := "attribute_exists(product_id)"

	qtyAV, _ := attributevalue.Marshal(quantity)
	thrAV, _ := attributevalue.Marshal(threshold)
	nowAV, _ := attributevalue.Marshal(time.Now().UTC().Format(time.RFC3339))

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &r.table,
		Key:                 key,
		UpdateExpression:    &expr,
		ConditionExpression: &condExpr,
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":qty": qtyAV,
			":thr": thrAV,
			":now": nowAV,
		},
		ExpressionAttributeNames: map[string]string{
			"#avail": "available",
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotFound
		}
		return fmt.Errorf("add stock failed: %w", err)
	}
	return nil
}

// Hold atomically moves quantity from available to reserved. The condition
// expression guarantees availability is never driven negative.
func (r *DynamoInventoryRepository) Hold(ctx context.Context, productID string, quantity int) error {
	return r.moveStock(ctx, productID, quantity,
		"SET #avail = #avail - :qty, #resv = #resv + :qty, updated_at = :now",
		"#avail >= :qty",
		map[string]string{"#avail": "available", "#resv": "reserved"},
		ErrInsufficientStock)
}

// Unhold returns previously held quantity to the available pool.
func (r *DynamoInventoryRepository) Unhold(ctx context.Context, productID string, quantity int) error {
	return r.moveStock(ctx, productID, quantity,
		"SET #avail = #avail + :qty, #resv = #resv - :qty, updated_at = :now",
		"#resv >= :qty",
		map[string]string{"#avail": "available", "#resv": "reserved"},
		ErrStaleReservation)
}

// Deduct permanently removes held quantity after a sale settled.
func (r *DynamoInventoryRepository) Deduct(ctx context.Context, productID string, quantity int) error {
	return r.moveStock(ctx, productID, quantity,
		"SET #resv = #resv - :qty, updated_at = :now",
		"#resv >= :qty",
		map[string]string{"#resv": "reserved"},
		ErrStaleReservation)
}

func (r *DynamoInventoryRepository) moveStock(ctx context.Context, productID string, quantity int, expr, condExpr string, names map[string]string, condErr error) error {
	key, err := attributevalue.MarshalMap(map[string]string{"product_id": productID})
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}

	qtyAV, _ := attributevalue.Marshal(quantity)
	nowAV, _ := attributevalue.Marshal(time.Now().UTC().Format(time.RFC3339))

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &r.table,
		Key:                 key,
		UpdateExpression:    &expr,
		ConditionExpression: &condExpr,
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":qty": qtyAV,
			":now": nowAV,
		},
		ExpressionAttributeNames: names,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return condErr
		}
		return fmt.Errorf("stock update failed: %w", err)
	}
	return nil
}

func (r *DynamoInventoryRepository) PutReservation(ctx context.Context, res *models.Reservation) error {
	lines := make([]ddbReserveLine, 0, len(res.Items))
	for _, it := range res.Items {
		lines = append(lines, ddbReserveLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	item, err := attributevalue.MarshalMap(ddbReservation{
		ReservationID: res.ID,
		OrderID:       res.OrderID,
		Items:         lines,
		Status:        string(res.Status),
		CreatedAt:     res.CreatedAt.Format(time.RFC3339),
		ExpiresAt:     res.ExpiresAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal reservation: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &r.reservationTable,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb PutItem failed: %w", err)
	}
	return nil
}

func (r *DynamoInventoryRepository) GetReservation(ctx context.Context, reservationID string) (*models.Reservation, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"reservation_id": reservationID})
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}

	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &r.reservationTable,
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb GetItem failed: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var dr ddbReservation
	if err := attributevalue.UnmarshalMap(out.Item, &dr); err != nil {
		return nil, fmt.Errorf("unmarshal reservation: %w", err)
	}

	res := &models.Reservation{
		ID:        dr.ReservationID,
		OrderID:   dr.OrderID,
		Status:    models.ReservationStatus(dr.Status),
		ExpiresAt: time.Unix(dr.ExpiresAt, 0).UTC(),
	}
	for _, line := range dr.Items {
		res.Items = append(res.Items, models.ReserveItem{ProductID: line.ProductID, Quantity: line.Quantity})
	}
	if t, err := time.Parse(time.RFC3339, dr.CreatedAt); err == nil {
		res.CreatedAt = t
	}
	return res, nil
}

// SettleReservation transitions a held reservation to committed or
// released. The conditional update makes commit/release idempotent: a
// second settle attempt fails the condition and reports ErrStaleReservation.
func (r *DynamoInventoryRepository) SettleReservation(ctx context.Context, reservationID string, to models.ReservationStatus) error {
	key, err := attributevalue.MarshalMap(map[string]string{"reservation_id": reservationID})
	if err != nil {
		return fmt.Errorf("marshal key: %w", err)
	}

	expr := "SET #st = :to"
	condExpr := "#st = :held"

	toAV, _ := attributevalue.Marshal(string(to))
	heldAV, _ := attributevalue.Marshal(string(models.ReservationHeld))

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           &r.reservationTable,
		Key:                 key,
		UpdateExpression:    &expr,
		ConditionExpression: &condExpr,
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":to":   toAV,
			":held": heldAV,
		},
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrStaleReservation
		}
		return fmt.Errorf("settle reservation failed: %w", err)
	}
	return nil
}
