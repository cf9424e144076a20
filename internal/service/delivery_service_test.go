package service

import (
	"context"
	"strings"
	"testing"

	"backend/internal/model"
	"backend/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDeliveryNoteCopiesSaleLines(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	sale := env.confirmedSale(t, customer, product, 4)
	note, err := env.deliveries.GenerateFromSale(ctx, GenerateDeliveryNoteRequest{
		SaleID:          sale.ID.String(),
		DeliveryAddress: "Av. Corrientes 1234",
		Courier:         "OCA",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(note.Number, "RM-"))
	assert.Equal(t, model.DeliveryNotePending, note.Status)
	require.Len(t, note.Items, 1)
	assert.Equal(t, 4, note.Items[0].QuantityRequested)
	assert.Equal(t, 4, note.Items[0].QuantityDelivered)

	fresh, err := env.saleRepo.FindByID(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryIssued, fresh.DeliveryState)
	require.NotNil(t, fresh.DeliveryNoteID)
	assert.Equal(t, note.ID, *fresh.DeliveryNoteID)
}

func TestGenerateDeliveryNoteRequiresConfirmedSale(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	draft := env.newSale(t, customer, product, 1)
	_, err := env.deliveries.GenerateFromSale(ctx, GenerateDeliveryNoteRequest{
		SaleID:          draft.ID.String(),
		DeliveryAddress: "Somewhere 1",
	})
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}

func TestOneActiveDeliveryNotePerSale(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	sale := env.confirmedSale(t, customer, product, 1)
	note, err := env.deliveries.GenerateFromSale(ctx, GenerateDeliveryNoteRequest{
		SaleID: sale.ID.String(), DeliveryAddress: "Somewhere 1",
	})
	require.NoError(t, err)

	_, err = env.deliveries.GenerateFromSale(ctx, GenerateDeliveryNoteRequest{
		SaleID: sale.ID.String(), DeliveryAddress: "Somewhere else",
	})
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))

	// After cancellation a fresh note may be issued.
	_, err = env.deliveries.ChangeStatus(ctx, note.ID, ChangeDeliveryStatusRequest{
		Status: model.DeliveryNoteCancelled, Reason: "wrong address",
	})
	require.NoError(t, err)
	_, err = env.deliveries.GenerateFromSale(ctx, GenerateDeliveryNoteRequest{
		SaleID: sale.ID.String(), DeliveryAddress: "Corrected address",
	})
	require.NoError(t, err)
}

func TestDeliveryStatusTransitionTable(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	sale := env.confirmedSale(t, customer, product, 1)
	note, err := env.deliveries.GenerateFromSale(ctx, GenerateDeliveryNoteRequest{
		SaleID: sale.ID.String(), DeliveryAddress: "Somewhere 1",
	})
	require.NoError(t, err)

	// pending -> delivered skips in_transit and is illegal.
	_, err = env.deliveries.ChangeStatus(ctx, note.ID, ChangeDeliveryStatusRequest{
		Status: model.DeliveryNoteDelivered, ReceiverName: "John",
	})
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))

	_, err = env.deliveries.ChangeStatus(ctx, note.ID, ChangeDeliveryStatusRequest{
		Status: model.DeliveryNoteInTransit,
	})
	require.NoError(t, err)

	// in_transit -> returned -> pending re-dispatch loop.
	_, err = env.deliveries.ChangeStatus(ctx, note.ID, ChangeDeliveryStatusRequest{
		Status: model.DeliveryNoteReturned,
	})
	require.NoError(t, err)
	back, err := env.deliveries.ChangeStatus(ctx, note.ID, ChangeDeliveryStatusRequest{
		Status: model.DeliveryNotePending,
	})
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryNotePending, back.Status)
}

func TestDeliveredTransitionStampsSaleAndDeductsStock(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	sale := env.confirmedSale(t, customer, product, 5)
	note, err := env.deliveries.GenerateFromSale(ctx, GenerateDeliveryNoteRequest{
		SaleID: sale.ID.String(), DeliveryAddress: "Somewhere 1",
	})
	require.NoError(t, err)
	_, err = env.deliveries.ChangeStatus(ctx, note.ID, ChangeDeliveryStatusRequest{
		Status: model.DeliveryNoteInTransit,
	})
	require.NoError(t, err)

	// Receiver name is mandatory on the delivered transition.
	_, err = env.deliveries.ChangeStatus(ctx, note.ID, ChangeDeliveryStatusRequest{
		Status: model.DeliveryNoteDelivered,
	})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	delivered, err := env.deliveries.ChangeStatus(ctx, note.ID, ChangeDeliveryStatusRequest{
		Status: model.DeliveryNoteDelivered, ReceiverName: "Jane Roe",
	})
	require.NoError(t, err)
	assert.NotNil(t, delivered.DeliveredAt)
	assert.Equal(t, "Jane Roe", delivered.ReceiverName)

	fresh, err := env.saleRepo.FindByID(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryDone, fresh.DeliveryState)
	assert.NotNil(t, fresh.DeliveredAt)

	stock, err := env.products.FindByID(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stock.Reserved)
	assert.Equal(t, 45, stock.CurrentStock)
}

func TestCancelledDeliveryNoteNeedsReasonAndRevertsSale(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	sale := env.confirmedSale(t, customer, product, 1)
	note, err := env.deliveries.GenerateFromSale(ctx, GenerateDeliveryNoteRequest{
		SaleID: sale.ID.String(), DeliveryAddress: "Somewhere 1",
	})
	require.NoError(t, err)

	_, err = env.deliveries.ChangeStatus(ctx, note.ID, ChangeDeliveryStatusRequest{
		Status: model.DeliveryNoteCancelled,
	})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	cancelled, err := env.deliveries.ChangeStatus(ctx, note.ID, ChangeDeliveryStatusRequest{
		Status: model.DeliveryNoteCancelled, Reason: "courier lost the package",
	})
	require.NoError(t, err)
	assert.Equal(t, "courier lost the package", cancelled.CancellationReason)

	fresh, err := env.saleRepo.FindByID(ctx, sale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DeliveryNone, fresh.DeliveryState)
	assert.Nil(t, fresh.DeliveryNoteID)
}

func TestUpdateDeliveredQuantitiesBounds(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	sale := env.confirmedSale(t, customer, product, 10)
	note, err := env.deliveries.GenerateFromSale(ctx, GenerateDeliveryNoteRequest{
		SaleID: sale.ID.String(), DeliveryAddress: "Somewhere 1",
	})
	require.NoError(t, err)

	_, err = env.deliveries.UpdateDeliveredQuantities(ctx, note.ID, UpdateDeliveredQuantitiesRequest{
		Items: []DeliveredQuantityRequest{
			{ItemID: note.Items[0].ID.String(), QuantityDelivered: 11},
		},
	})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))

	updated, err := env.deliveries.UpdateDeliveredQuantities(ctx, note.ID, UpdateDeliveredQuantitiesRequest{
		Items: []DeliveredQuantityRequest{
			{ItemID: note.Items[0].ID.String(), QuantityDelivered: 7},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, updated.Items[0].QuantityDelivered)
	// Recording quantities never advances the status by itself.
	assert.Equal(t, model.DeliveryNotePending, updated.Status)
}

func TestQuantitiesFrozenAfterTerminalStatus(t *testing.T) {
	env := newTestEnv(t)
	customer := env.seedCustomer(t, "Acme", model.TaxConditionFinal, "0")
	product := env.seedProduct(t, "SKU-1", "100.00", 50)
	ctx := context.Background()

	sale := env.confirmedSale(t, customer, product, 2)
	note, err := env.deliveries.GenerateFromSale(ctx, GenerateDeliveryNoteRequest{
		SaleID: sale.ID.String(), DeliveryAddress: "Somewhere 1",
	})
	require.NoError(t, err)
	_, err = env.deliveries.ChangeStatus(ctx, note.ID, ChangeDeliveryStatusRequest{
		Status: model.DeliveryNoteInTransit,
	})
	require.NoError(t, err)
	_, err = env.deliveries.ChangeStatus(ctx, note.ID, ChangeDeliveryStatusRequest{
		Status: model.DeliveryNoteDelivered, ReceiverName: "Jane",
	})
	require.NoError(t, err)

	_, err = env.deliveries.UpdateDeliveredQuantities(ctx, note.ID, UpdateDeliveredQuantitiesRequest{
		Items: []DeliveredQuantityRequest{
			{ItemID: note.Items[0].ID.String(), QuantityDelivered: 1},
		},
	})
	assert.True(t, apperror.IsKind(err, apperror.KindConflict))
}
