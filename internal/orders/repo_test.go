package orders

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/vendorlution-backend/pkg/db"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/dbtest"
	"github.com/angelmondragon/vendorlution-backend/pkg/db/models"
	"github.com/angelmondragon/vendorlution-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func seedOrder(t *testing.T, repo Repository, status enums.OrderStatus, paidAt *time.Time) *models.Order {
	t.Helper()
	order := &models.Order{
		BuyerID:        uuid.New(),
		SellerID:       uuid.New(),
		Status:         status,
		PaymentMethod:  enums.PaymentMethodWallet,
		DeliveryMethod: enums.DeliveryCourier,
		Subtotal:       decimal.RequireFromString("80.00"),
		ShippingFee:    decimal.RequireFromString("59.00"),
		ProtectionFee:  decimal.RequireFromString("25.10"),
		TotalAmount:    decimal.RequireFromString("164.10"),
		PaidAt:         paidAt,
		Items: []models.OrderItem{{
			ProductID:     uuid.New(),
			Quantity:      1,
			PriceSnapshot: decimal.RequireFromString("80.00"),
			LineTotal:     decimal.RequireFromString("80.00"),
		}},
	}
	require.NoError(t, repo.CreateOrder(context.Background(), order))
	return order
}

func TestCreateAndLockOrderLoadsItems(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()

	order := seedOrder(t, repo, enums.OrderStatusPending, nil)

	locked, err := repo.WithTx(client.DB()).LockOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, locked.Items, 1)
	require.True(t, locked.TotalAmount.Equal(decimal.RequireFromString("164.10")))

	_, err = repo.FindOrder(ctx, uuid.New())
	require.True(t, db.IsNotFound(err))
}

func TestUpdateOrderIsGuardedByStatus(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	order := seedOrder(t, repo, enums.OrderStatusPaid, nil)

	ok, err := repo.UpdateOrder(ctx, order.ID, []enums.OrderStatus{enums.OrderStatusPending}, map[string]any{"status": enums.OrderStatusCancelled})
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = repo.UpdateOrder(ctx, order.ID, []enums.OrderStatus{enums.OrderStatusPaid}, map[string]any{"status": enums.OrderStatusShipped})
	require.NoError(t, err)
	require.True(t, ok)

	reloaded, err := repo.FindOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusShipped, reloaded.Status)
}

func TestListReleaseCandidates(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()

	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	old := now.Add(-10 * 24 * time.Hour)
	recent := now.Add(-2 * 24 * time.Hour)
	cutoff := now.Add(-7 * 24 * time.Hour)

	paidLongAgo := seedOrder(t, repo, enums.OrderStatusPaid, &old)
	paidRecently := seedOrder(t, repo, enums.OrderStatusPaid, &recent)
	seedOrder(t, repo, enums.OrderStatusDelivered, &old)

	deliveredLongAgo := seedOrder(t, repo, enums.OrderStatusShipped, &old)
	require.NoError(t, repo.CreateShipment(ctx, &models.Shipment{OrderID: deliveredLongAgo.ID, Method: enums.DeliveryCourier, Status: enums.ShipmentDelivered, DeliveredAt: &old}))

	deliveredRecently := seedOrder(t, repo, enums.OrderStatusShipped, &old)
	require.NoError(t, repo.CreateShipment(ctx, &models.Shipment{OrderID: deliveredRecently.ID, Method: enums.DeliveryPargo, Status: enums.ShipmentDelivered, DeliveredAt: &recent}))

	inTransit := seedOrder(t, repo, enums.OrderStatusShipped, &old)
	require.NoError(t, repo.CreateShipment(ctx, &models.Shipment{OrderID: inTransit.ID, Method: enums.DeliveryCourier, Status: enums.ShipmentInTransit}))

	rows, err := repo.ListReleaseCandidates(ctx, cutoff, 0)
	require.NoError(t, err)

	got := map[uuid.UUID]bool{}
	for _, row := range rows {
		got[row.ID] = true
	}
	require.Len(t, rows, 1)
	require.False(t, got[paidLongAgo.ID], "an order that never shipped is not released")
	require.True(t, got[deliveredLongAgo.ID])
	require.False(t, got[paidRecently.ID])
	require.False(t, got[inTransit.ID])
	require.False(t, got[deliveredRecently.ID])
}

func TestActiveDisputeLookup(t *testing.T) {
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	ctx := context.Background()
	order := seedOrder(t, repo, enums.OrderStatusPaid, nil)

	closed := &models.Dispute{OrderID: order.ID, OpenedBy: order.BuyerID, Reason: enums.DisputeReasonOther, Description: "old", Status: enums.DisputeClosed}
	require.NoError(t, repo.CreateDispute(ctx, closed))
	_, err := repo.FindActiveDispute(ctx, order.ID)
	require.True(t, db.IsNotFound(err))

	open := &models.Dispute{OrderID: order.ID, OpenedBy: order.BuyerID, Reason: enums.DisputeReasonDamaged, Description: "cracked", Status: enums.DisputeOpen}
	require.NoError(t, repo.CreateDispute(ctx, open))
	active, err := repo.FindActiveDispute(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, open.ID, active.ID)

	ok, err := repo.UpdateDispute(ctx, open.ID, []enums.DisputeStatus{enums.DisputeUnderReview}, map[string]any{"status": enums.DisputeClosed})
	require.NoError(t, err)
	require.False(t, ok)
}
