package journey

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/wesleyorama2/perfgate/internal/loadgen"
	"github.com/wesleyorama2/perfgate/internal/loadgen/metrics"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   string
}

// fakeShop serves both the gateway and the storefront APIs and records
// every request it sees.
type fakeShop struct {
	mu       sync.Mutex
	requests []recorded
}

func (f *fakeShop) handler() http.Handler {
	mux := http.NewServeMux()
	reply := func(status int, body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			io.WriteString(w, body)
		}
	}

	mux.Handle("/user-service/api/users", reply(http.StatusOK, `{"userId":7}`))
	mux.Handle("/order-service/api/carts", reply(http.StatusCreated, `{"cartId":11}`))
	mux.Handle("/product-service/api/products", reply(http.StatusOK, `{"collection":[{"productId":3},{"productId":4}]}`))
	mux.Handle("/product-service/api/products/", reply(http.StatusOK, `{"productId":3}`))
	mux.Handle("/order-service/api/orders", func() http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				reply(http.StatusCreated, `{"orderId":21}`)(w, r)
				return
			}
			reply(http.StatusOK, `{"collection":[]}`)(w, r)
		}
	}())
	mux.Handle("/payment-service/api/payments", reply(http.StatusOK, `{"paymentId":1}`))

	mux.Handle("/api/users/register", reply(http.StatusCreated, `{"id":42}`))
	mux.Handle("/api/auth/login", reply(http.StatusOK, `{"token":"tok-1"}`))
	mux.Handle("/api/products", reply(http.StatusOK, `[{"id":5},{"id":6}]`))
	mux.Handle("/api/products/", reply(http.StatusOK, `{"id":5}`))
	mux.Handle("/api/cart/items", reply(http.StatusCreated, `{}`))
	mux.Handle("/api/cart/items/", reply(http.StatusOK, `{}`))
	mux.Handle("/api/cart/user/", reply(http.StatusOK, `{"items":[]}`))
	mux.Handle("/api/orders/checkout/", reply(http.StatusCreated, `{"id":99}`))
	mux.Handle("/api/orders/user/", reply(http.StatusOK, `[]`))
	mux.Handle("/api/payments/process", reply(http.StatusOK, `{"status":"PAID"}`))
	mux.Handle("/api/favorites", reply(http.StatusCreated, `{}`))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recorded{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			Body:   string(body),
		})
		f.mu.Unlock()
		mux.ServeHTTP(w, r)
	})
}

func (f *fakeShop) last() recorded {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return recorded{}
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakeShop) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newSession(t *testing.T) (*fakeShop, *loadgen.Session, *metrics.Engine) {
	t.Helper()
	f := &fakeShop{}
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	engine := metrics.NewEngine()
	return f, loadgen.NewSession(1, srv.URL, srv.Client(), engine, 1), engine
}

func task(t *testing.T, j loadgen.Journey, name string) loadgen.Task {
	t.Helper()
	for _, task := range j.Tasks() {
		if task.Name == name {
			return task
		}
	}
	t.Fatalf("journey %s has no task %q", j.Name(), name)
	return loadgen.Task{}
}

func TestLookup(t *testing.T) {
	assert.Equal(t, []string{"gateway", "shop"}, Names())

	j, err := Lookup("gateway")
	require.NoError(t, err)
	assert.Equal(t, "gateway", j.Name())

	_, err = Lookup("checkout")
	assert.ErrorContains(t, err, `unknown journey "checkout" (available: gateway, shop)`)
}

func TestPayload(t *testing.T) {
	body, err := payload("orderFee", 12.5, "cart.cartId", int64(3), "cart.userId", "u-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"orderFee":12.5,"cart":{"cartId":3,"userId":"u-1"}}`, string(body))

	_, err = payload("odd")
	assert.Error(t, err)

	_, err = payload(1, 2)
	assert.Error(t, err)
}

func TestJSONID(t *testing.T) {
	assert.Equal(t, int64(42), jsonID("42"))
	assert.Equal(t, "u-42", jsonID("u-42"))
}

func TestGateway_OnStart(t *testing.T) {
	f, s, _ := newSession(t)
	g := NewGateway()

	require.NoError(t, g.OnStart(context.Background(), s))
	assert.Equal(t, 3, f.count())

	userID, _ := s.Get(keyUserID)
	cartID, _ := s.Get(keyCartID)
	productID, _ := s.Get(keyProductID)
	assert.Equal(t, "7", userID)
	assert.Equal(t, "11", cartID)
	assert.Equal(t, "3", productID)

	f.mu.Lock()
	cart := f.requests[1]
	user := f.requests[0]
	f.mu.Unlock()
	assert.Equal(t, "/order-service/api/carts", cart.Path)
	assert.JSONEq(t, `{"userId":7}`, cart.Body)
	assert.Equal(t, "ROLE_USER", gjson.Get(user.Body, "credential.roleBasedAuthority").String())
	assert.True(t, gjson.Get(user.Body, "credential.isEnabled").Bool())
}

func TestGateway_OrderAndPayment(t *testing.T) {
	f, s, engine := newSession(t)
	g := NewGateway()
	ctx := context.Background()
	require.NoError(t, g.OnStart(ctx, s))

	require.NoError(t, task(t, g, "orders:create").Run(ctx, s))
	order := f.last()
	fee := gjson.Get(order.Body, "orderFee").Float()
	assert.GreaterOrEqual(t, fee, 20.0)
	assert.LessOrEqual(t, fee, 250.0)
	assert.EqualValues(t, 11, gjson.Get(order.Body, "cart.cartId").Int())
	assert.EqualValues(t, 7, gjson.Get(order.Body, "cart.userId").Int())

	require.NoError(t, task(t, g, "payments:create").Run(ctx, s))
	payment := f.last()
	assert.Equal(t, "/payment-service/api/payments", payment.Path)
	assert.JSONEq(t, `{"isPayed":false,"paymentStatus":"NOT_STARTED","order":{"orderId":21}}`, payment.Body)

	require.NoError(t, task(t, g, "products:detail").Run(ctx, s))
	assert.True(t, strings.HasPrefix(f.last().Path, "/product-service/api/products/"))

	rows := engine.Rows(time.Second)
	names := map[string]bool{}
	for _, r := range rows[:len(rows)-1] {
		names[r.Name] = true
	}
	assert.Equal(t, map[string]bool{
		"users:create":    true,
		"carts:create":    true,
		"products:list":   true,
		"orders:create":   true,
		"payments:create": true,
		"products:detail": true,
	}, names)
}

func TestGateway_GuardsSkipRequests(t *testing.T) {
	f, s, _ := newSession(t)
	g := NewGateway()
	ctx := context.Background()

	for _, name := range []string{"products:detail", "orders:create", "payments:create"} {
		require.NoError(t, task(t, g, name).Run(ctx, s))
	}
	assert.Equal(t, 0, f.count())
}

func TestGateway_FailureMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	engine := metrics.NewEngine()
	s := loadgen.NewSession(1, srv.URL, srv.Client(), engine, 1)
	err := NewGateway().OnStart(context.Background(), s)
	assert.EqualError(t, err, "User creation failed (500)")

	failures := engine.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, "users:create", failures[0].Name)
	assert.Equal(t, "User creation failed (500)", failures[0].Error)
}

func TestShop_OnStart(t *testing.T) {
	f, s, _ := newSession(t)
	sh := NewShop()

	require.NoError(t, sh.OnStart(context.Background(), s))
	require.Equal(t, 2, f.count())

	f.mu.Lock()
	register, login := f.requests[0], f.requests[1]
	f.mu.Unlock()

	assert.Equal(t, "/api/users/register", register.Path)
	username := gjson.Get(register.Body, "username").String()
	assert.True(t, strings.HasPrefix(username, "perfuser_"))
	assert.Equal(t, username+"@performance.com", gjson.Get(register.Body, "email").String())
	assert.Contains(t, preferences, gjson.Get(register.Body, "preferences").String())

	assert.Equal(t, "/api/auth/login", login.Path)
	assert.Equal(t, username, gjson.Get(login.Body, "username").String())

	userID, _ := s.Get(keyUserID)
	token, _ := s.Get(keyToken)
	assert.Equal(t, "42", userID)
	assert.Equal(t, "tok-1", token)
}

func TestShop_CartFlow(t *testing.T) {
	f, s, _ := newSession(t)
	sh := NewShop()
	ctx := context.Background()
	require.NoError(t, sh.OnStart(ctx, s))

	// nothing in the cart yet
	before := f.count()
	require.NoError(t, task(t, sh, "update-cart").Run(ctx, s))
	assert.Equal(t, before, f.count())

	require.NoError(t, task(t, sh, "browse").Run(ctx, s))
	browse := f.last()
	assert.Equal(t, "/api/products", browse.Path)
	assert.Equal(t, "Bearer tok-1", browse.Auth)

	require.NoError(t, task(t, sh, "add-to-cart").Run(ctx, s))
	add := f.last()
	assert.EqualValues(t, 42, gjson.Get(add.Body, "userId").Int())
	assert.EqualValues(t, 5, gjson.Get(add.Body, "productId").Int())
	qty := gjson.Get(add.Body, "quantity").Int()
	assert.True(t, qty >= 1 && qty <= 5, "quantity = %d, want 1..5", qty)

	items, _ := s.Get(keyCartItems)
	assert.EqualValues(t, 1, gjson.Get(items, "#").Int())

	require.NoError(t, task(t, sh, "update-cart").Run(ctx, s))
	update := f.last()
	assert.Equal(t, http.MethodPut, update.Method)
	assert.Equal(t, "/api/cart/items/5", update.Path)
	items, _ = s.Get(keyCartItems)
	assert.Equal(t, gjson.Get(update.Body, "quantity").Int(), gjson.Get(items, "0.quantity").Int())
}

func TestShop_CheckoutAndPay(t *testing.T) {
	f, s, engine := newSession(t)
	sh := NewShop()
	ctx := context.Background()
	require.NoError(t, sh.OnStart(ctx, s))

	require.NoError(t, task(t, sh, "checkout-and-pay").Run(ctx, s))
	pay := f.last()
	assert.Equal(t, "/api/payments/process", pay.Path)
	assert.EqualValues(t, 99, gjson.Get(pay.Body, "orderId").Int())
	assert.Equal(t, "CREDIT_CARD", gjson.Get(pay.Body, "paymentMethod").String())

	require.NoError(t, task(t, sh, "search").Run(ctx, s))
	search := f.last()
	assert.Equal(t, "/api/products/search", search.Path)
	assert.Contains(t, searchQueries, strings.TrimPrefix(search.Query, "query="))

	rows := engine.Rows(time.Second)
	names := map[string]bool{}
	for _, r := range rows[:len(rows)-1] {
		names[r.Name] = true
	}
	assert.True(t, names["/api/orders/checkout/{id}"])
	assert.True(t, names["/api/products/search"])
	assert.False(t, names["/api/orders/checkout/42"])
}

func TestJourneys_RunUnderVirtualUser(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			_, s, engine := newSession(t)
			j, err := Lookup(name)
			require.NoError(t, err)

			vu, err := loadgen.NewVirtualUser(1, j, s)
			require.NoError(t, err)

			// the wait between tasks ends with the context
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			require.NoError(t, vu.RunIteration(ctx))

			assert.Greater(t, engine.Snapshot().TotalRequests, int64(0))
			assert.Zero(t, engine.Snapshot().Failures)
		})
	}
}
