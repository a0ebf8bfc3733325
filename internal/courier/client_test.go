package courier

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safar/go-fulfillment/internal/config"
	"github.com/safar/go-fulfillment/internal/logging"
	"github.com/safar/go-fulfillment/internal/models"
)

type fakeAggregator struct {
	t      *testing.T
	mux    *http.ServeMux
	srv    *httptest.Server
	logins atomic.Int32
}

func newFakeAggregator(t *testing.T) *fakeAggregator {
	t.Helper()

	f := &fakeAggregator{t: t, mux: http.NewServeMux()}
	f.mux.HandleFunc("POST /v1/external/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["email"] != "ops@example.com" || body["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		n := f.logins.Add(1)
		writeJSON(w, http.StatusOK, map[string]any{"token": fmt.Sprintf("tok-%d", n)})
	})
	f.srv = httptest.NewServer(f.mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAggregator) handle(pattern string, h http.HandlerFunc) {
	f.mux.HandleFunc(pattern, h)
}

func (f *fakeAggregator) client(opts ...Option) *Client {
	cfg := config.CourierConfig{
		BaseURL:     f.srv.URL + "/",
		Email:       "ops@example.com",
		Password:    "secret",
		TokenTTL:    25 * time.Minute,
		HTTPTimeout: 5 * time.Second,
	}
	return NewClient(cfg, append([]Option{WithLogger(logging.Discard())}, opts...)...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTokenCachedUntilTTL(t *testing.T) {
	f := newFakeAggregator(t)
	var seen []string
	f.handle("POST /v1/external/orders/cancel", func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{})
	})

	clock := &fakeClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	c := f.client(WithClock(clock.Now))
	ctx := t.Context()

	require.NoError(t, c.CancelOrders(ctx, "1"))
	clock.Advance(24 * time.Minute)
	require.NoError(t, c.CancelOrders(ctx, "2"))
	assert.Equal(t, int32(1), f.logins.Load())

	clock.Advance(2 * time.Minute)
	require.NoError(t, c.CancelOrders(ctx, "3"))
	assert.Equal(t, int32(2), f.logins.Load())

	assert.Equal(t, []string{"Bearer tok-1", "Bearer tok-1", "Bearer tok-2"}, seen)
}

func TestUnauthorizedInvalidatesToken(t *testing.T) {
	f := newFakeAggregator(t)
	var calls atomic.Int32
	f.handle("POST /v1/external/orders/cancel", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Token has expired"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{})
	})

	c := f.client()
	ctx := t.Context()

	err := c.CancelOrders(ctx, "1")
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, http.StatusUnauthorized, remote.StatusCode)
	assert.Equal(t, "Token has expired", remote.Message)

	require.NoError(t, c.CancelOrders(ctx, "1"))
	assert.Equal(t, int32(2), f.logins.Load())
}

func TestMissingCredentials(t *testing.T) {
	c := NewClient(config.CourierConfig{BaseURL: "http://127.0.0.1:1"}, WithLogger(logging.Discard()))

	_, err := c.EnsureToken(t.Context())
	assert.ErrorIs(t, err, ErrMissingCredentials)

	err = c.CancelOrders(t.Context(), "1")
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestRemoteErrorCarriesBody(t *testing.T) {
	f := newFakeAggregator(t)
	f.handle("POST /v1/external/orders/create/adhoc", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"message": "Oops! Invalid Data.",
			"errors":  map[string]any{"billing_pincode": []string{"The billing pincode must be 6 digits."}},
		})
	})

	_, err := f.client().CreateOrderShipment(t.Context(), CreateOrderRequest{ChannelOrderID: "1-1"})

	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "create_order", remote.Operation)
	assert.Equal(t, http.StatusUnprocessableEntity, remote.StatusCode)
	assert.Equal(t, "Oops! Invalid Data.", remote.Message)
	assert.Contains(t, remote.Body, "billing pincode must be 6 digits")
}

func TestCreateOrderShipmentPayload(t *testing.T) {
	f := newFakeAggregator(t)
	var got map[string]any
	f.handle("POST /v1/external/orders/create/adhoc", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusOK, map[string]any{
			"order_id":    555001,
			"shipment_id": []int64{777001},
			"status":      "NEW",
		})
	})

	mrp := decimal.RequireFromString("999")
	resp, err := f.client().CreateOrderShipment(t.Context(), CreateOrderRequest{
		ChannelOrderID: "42-3",
		PickupLocation: "Indiranagar",
		Customer: Customer{
			Address: models.Address{Line1: "12 MG Road", City: "Bengaluru", State: "KA", Pincode: "560001"},
		},
		Items: []models.LineItem{
			{VariantID: 11, Qty: 2, Price: decimal.RequireFromString("249.50"), MRP: &mrp, Name: "Linen Shirt"},
			{VariantID: 12, Qty: 1, Price: decimal.RequireFromString("100")},
		},
		PaymentMethod: "COD",
		OrderDate:     time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, "555001", resp.OrderID.String())
	assert.Equal(t, "777001", resp.ShipmentID.String())

	assert.Equal(t, "42-3", got["order_id"])
	assert.Equal(t, "Indiranagar", got["pickup_location"])
	assert.Equal(t, "Customer", got["billing_customer_name"])
	assert.Equal(t, "na@example.com", got["billing_email"])
	assert.Equal(t, "9999999999", got["billing_phone"])
	assert.Equal(t, "India", got["billing_country"])
	assert.Equal(t, "560001", got["billing_pincode"])
	assert.Equal(t, true, got["shipping_is_billing"])
	assert.Equal(t, "COD", got["payment_method"])
	assert.Equal(t, 599.0, got["sub_total"])
	assert.Equal(t, 10.0, got["length"])
	assert.Equal(t, 10.0, got["breadth"])
	assert.Equal(t, 5.0, got["height"])
	assert.Equal(t, 0.5, got["weight"])
	assert.Equal(t, "2024-03-01T10:00:00Z", got["order_date"])

	items := got["order_items"].([]any)
	require.Len(t, items, 2)
	first := items[0].(map[string]any)
	second := items[1].(map[string]any)
	assert.Equal(t, "Linen Shirt", first["name"])
	assert.Equal(t, "11", first["sku"])
	assert.Equal(t, 2.0, first["units"])
	assert.Equal(t, 249.5, first["selling_price"])
	assert.Equal(t, "Variant 12", second["name"])
}

func TestUnknownPaymentMethodIsPrepaid(t *testing.T) {
	p := CreateOrderRequest{PaymentMethod: "cod"}.payload()
	assert.Equal(t, "Prepaid", p.PaymentMethod)

	p = CreateOrderRequest{Dimensions: &Dimensions{Length: 30}, WeightKg: 2}.payload()
	assert.Equal(t, 30.0, p.Length)
	assert.Equal(t, 10.0, p.Breadth)
	assert.Equal(t, 5.0, p.Height)
	assert.Equal(t, 2.0, p.Weight)
}

func TestAssignAWBAndLabel(t *testing.T) {
	f := newFakeAggregator(t)
	f.handle("POST /v1/external/courier/assign/awb", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, []any{777001.0}, body["shipment_id"])
		writeJSON(w, http.StatusOK, map[string]any{
			"awb_assign_status": 1,
			"response": map[string]any{"data": map[string]any{
				"awb_code":     "AWB123",
				"courier_name": "Delhivery",
			}},
		})
	})
	f.handle("POST /v1/external/courier/generate/label", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"label_created": 1, "label_url": "https://labels.example/777001.pdf"})
	})

	res, err := f.client().AssignAWBAndLabel(t.Context(), "777001")
	require.NoError(t, err)
	assert.Equal(t, "AWB123", res.AWB)
	assert.Equal(t, "Delhivery", res.CourierName)
	assert.Equal(t, "https://labels.example/777001.pdf", res.LabelURL)
}

func TestAssignAWBWithoutCodeFails(t *testing.T) {
	f := newFakeAggregator(t)
	var labels atomic.Int32
	f.handle("POST /v1/external/courier/assign/awb", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"awb_assign_status": 0,
			"response": map[string]any{"data": map[string]any{
				"awb_assign_error": "Insufficient wallet balance",
			}},
		})
	})
	f.handle("POST /v1/external/courier/generate/label", func(w http.ResponseWriter, r *http.Request) {
		labels.Add(1)
	})

	_, err := f.client().AssignAWBAndLabel(t.Context(), "777001")

	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Contains(t, remote.Message, "Insufficient wallet balance")
	assert.Equal(t, int32(0), labels.Load())
}

func TestServiceabilitySendsQuery(t *testing.T) {
	f := newFakeAggregator(t)
	f.handle("GET /v1/external/courier/serviceability", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "560001", q.Get("pickup_postcode"))
		assert.Equal(t, "400001", q.Get("delivery_postcode"))
		assert.Equal(t, "1", q.Get("cod"))
		assert.Equal(t, "0.5", q.Get("weight"))
		assert.Empty(t, r.Header.Get("Content-Type"))
		writeJSON(w, http.StatusOK, map[string]any{
			"status": 200,
			"data": map[string]any{"available_courier_companies": []map[string]any{
				{"courier_company_id": 10, "courier_name": "Delhivery", "rate": 89.5, "etd": "Mar 04, 2024", "cod": 1},
			}},
		})
	})

	res, err := f.client().CheckServiceability(t.Context(), ServiceabilityQuery{
		PickupPostcode:   "560001",
		DeliveryPostcode: "400001",
		COD:              true,
	})
	require.NoError(t, err)
	assert.True(t, res.Serviceable)
	require.Len(t, res.Couriers, 1)
	assert.Equal(t, "10", res.Couriers[0].CourierCompanyID.String())
	assert.True(t, decimal.RequireFromString("89.5").Equal(res.Couriers[0].Rate))
}

func TestServiceabilityNotFoundIsUnserviceable(t *testing.T) {
	f := newFakeAggregator(t)
	f.handle("GET /v1/external/courier/serviceability", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "No courier serviceable"})
	})

	res, err := f.client().CheckServiceability(t.Context(), ServiceabilityQuery{PickupPostcode: "560001", DeliveryPostcode: "999999"})
	require.NoError(t, err)
	assert.False(t, res.Serviceable)
	assert.Empty(t, res.Couriers)
}

func TestCancelOrdersWithoutIDsIsNoop(t *testing.T) {
	f := newFakeAggregator(t)

	require.NoError(t, f.client().CancelOrders(t.Context()))
	require.NoError(t, f.client().CancelOrders(t.Context(), ""))
	assert.Equal(t, int32(0), f.logins.Load())
}

func TestListPickupLocationsAndTrack(t *testing.T) {
	f := newFakeAggregator(t)
	f.handle("GET /v1/external/settings/company/pickup", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": map[string]any{"shipping_address": []map[string]any{
			{"id": 9001, "pickup_location": "Indiranagar", "pin_code": 560038},
		}}})
	})
	f.handle("GET /v1/external/courier/track", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "42-3", r.URL.Query().Get("order_id"))
		assert.Equal(t, "", r.URL.Query().Get("channel_id"))
		writeJSON(w, http.StatusOK, []map[string]any{{"tracking_data": map[string]any{"track_status": 1}}})
	})

	c := f.client()

	locs, err := c.ListPickupLocations(t.Context())
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "9001", locs[0].ID.String())
	assert.Equal(t, "560038", locs[0].PinCode.String())

	doc, err := c.TrackOrder(t.Context(), "42-3", "")
	require.NoError(t, err)
	assert.Contains(t, string(doc), "track_status")
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	f := newFakeAggregator(t)
	var hits atomic.Int32
	f.handle("POST /v1/external/manifests/generate", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusBadGateway, map[string]any{"message": "upstream down"})
	})

	c := f.client(WithBreakerSettings(gobreaker.Settings{
		Timeout: time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 2
		},
	}))

	for i := 0; i < 2; i++ {
		_, err := c.GenerateManifest(t.Context(), []string{"1"})
		require.Error(t, err)
	}

	_, err := c.GenerateManifest(t.Context(), []string{"1"})
	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	f := newFakeAggregator(t)
	var hits atomic.Int32
	f.handle("POST /v1/external/manifests/generate", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "bad shipment"})
	})

	c := f.client(WithBreakerSettings(gobreaker.Settings{
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
	}))

	for i := 0; i < 3; i++ {
		_, err := c.GenerateManifest(t.Context(), []string{"1"})
		require.Error(t, err)
	}
	assert.Equal(t, int32(3), hits.Load())
}

func TestFlexibleIDDecoding(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`123`, "123"},
		{`"SR-9"`, "SR-9"},
		{`[456, 789]`, "456"},
		{`["abc"]`, "abc"},
		{`[]`, ""},
		{`null`, ""},
		{`12345678901234567890`, "12345678901234567890"},
	}

	for _, tc := range cases {
		var id FlexibleID
		require.NoError(t, json.Unmarshal([]byte(tc.raw), &id), tc.raw)
		assert.Equal(t, tc.want, id.String(), tc.raw)
	}
}

func TestFlexibleIDEncoding(t *testing.T) {
	data, err := json.Marshal([]FlexibleID{"123", "SR-9", "0123", ""})
	require.NoError(t, err)
	assert.JSONEq(t, `[123, "SR-9", "0123", null]`, string(data))
}
