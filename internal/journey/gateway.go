package journey

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/wesleyorama2/perfgate/internal/loadgen"
)

// GatewayName is the registry name of the gateway journey.
const GatewayName = "gateway"

// Session keys used by the gateway journey.
const (
	keyUserID    = "user_id"
	keyCartID    = "cart_id"
	keyProductID = "product_id"
	keyOrderID   = "order_id"
)

var created = []int{http.StatusOK, http.StatusCreated}

// Gateway exercises the microservices behind the API gateway: it creates
// a user and a cart, then browses products, places orders and registers
// payments.
type Gateway struct{}

// NewGateway creates the gateway journey.
func NewGateway() *Gateway {
	return &Gateway{}
}

// Name implements loadgen.Journey.
func (*Gateway) Name() string { return GatewayName }

// Wait implements loadgen.Journey.
func (*Gateway) Wait() (time.Duration, time.Duration) {
	return 500 * time.Millisecond, 2 * time.Second
}

// OnStart creates the user and its cart and prefetches a product.
func (g *Gateway) OnStart(ctx context.Context, s *loadgen.Session) error {
	if err := g.createUser(ctx, s); err != nil {
		return err
	}
	if err := g.createCart(ctx, s); err != nil {
		return err
	}
	return g.listProducts(ctx, s, false)
}

// Tasks implements loadgen.Journey.
func (g *Gateway) Tasks() []loadgen.Task {
	return []loadgen.Task{
		{Name: "products:list", Weight: 5, Run: func(ctx context.Context, s *loadgen.Session) error {
			return g.listProducts(ctx, s, true)
		}},
		{Name: "products:detail", Weight: 3, Run: g.viewProduct},
		{Name: "orders:create", Weight: 2, Run: g.createOrder},
		{Name: "payments:create", Weight: 1, Run: g.registerPayment},
		{Name: "orders:list", Weight: 1, Run: g.listOrders},
	}
}

func (g *Gateway) createUser(ctx context.Context, s *loadgen.Session) error {
	body, err := payload(
		"firstName", unique("Locust", "-"),
		"lastName", "User",
		"email", unique("locust", "-")+"@test.com",
		"phone", fmt.Sprintf("+1%d", 2000000000+s.Rand().Int63n(8000000000)),
		"credential.username", unique("locust", "-"),
		"credential.password", "Password123!",
		"credential.roleBasedAuthority", "ROLE_USER",
		"credential.isEnabled", true,
		"credential.isAccountNonExpired", true,
		"credential.isAccountNonLocked", true,
		"credential.isCredentialsNonExpired", true,
	)
	if err != nil {
		return err
	}

	resp := s.Do(ctx, loadgen.Request{
		Method: http.MethodPost,
		Path:   "/user-service/api/users",
		Name:   "users:create",
		Body:   body,
		Expect: created,
		Action: "User creation",
	})
	if !resp.OK() {
		return resp.Err
	}
	setIfPresent(s, keyUserID, resp.JSON("userId").String())
	return nil
}

func (g *Gateway) createCart(ctx context.Context, s *loadgen.Session) error {
	userID, ok := s.Get(keyUserID)
	if !ok {
		return nil
	}

	body, err := payload("userId", jsonID(userID))
	if err != nil {
		return err
	}

	resp := s.Do(ctx, loadgen.Request{
		Method: http.MethodPost,
		Path:   "/order-service/api/carts",
		Name:   "carts:create",
		Body:   body,
		Expect: created,
		Action: "Cart creation",
	})
	if !resp.OK() {
		return resp.Err
	}
	setIfPresent(s, keyCartID, resp.JSON("cartId").String())
	return nil
}

// listProducts remembers the first product, or a random one when pick is set.
func (g *Gateway) listProducts(ctx context.Context, s *loadgen.Session, pick bool) error {
	resp := s.Do(ctx, loadgen.Request{
		Method: http.MethodGet,
		Path:   "/product-service/api/products",
		Name:   "products:list",
		Expect: []int{http.StatusOK},
		Action: "Product list",
	})
	if !resp.OK() {
		return resp.Err
	}

	ids := resp.JSON("collection.#.productId").Array()
	if len(ids) == 0 {
		return nil
	}
	i := 0
	if pick {
		i = s.Rand().Intn(len(ids))
	}
	setIfPresent(s, keyProductID, ids[i].String())
	return nil
}

func (g *Gateway) viewProduct(ctx context.Context, s *loadgen.Session) error {
	productID, ok := s.Get(keyProductID)
	if !ok {
		return nil
	}

	return s.Do(ctx, loadgen.Request{
		Method: http.MethodGet,
		Path:   "/product-service/api/products/" + productID,
		Name:   "products:detail",
		Expect: []int{http.StatusOK},
		Action: "Product detail",
	}).Err
}

func (g *Gateway) createOrder(ctx context.Context, s *loadgen.Session) error {
	cartID, ok := s.Get(keyCartID)
	if !ok {
		return nil
	}
	userID, _ := s.Get(keyUserID)

	fee := math.Round((20+s.Rand().Float64()*230)*100) / 100
	body, err := payload(
		"orderDesc", "Checkout "+time.Now().UTC().Format(time.RFC3339Nano),
		"orderFee", fee,
		"cart.cartId", jsonID(cartID),
		"cart.userId", jsonID(userID),
	)
	if err != nil {
		return err
	}

	resp := s.Do(ctx, loadgen.Request{
		Method: http.MethodPost,
		Path:   "/order-service/api/orders",
		Name:   "orders:create",
		Body:   body,
		Expect: created,
		Action: "Order creation",
	})
	if !resp.OK() {
		return resp.Err
	}
	setIfPresent(s, keyOrderID, resp.JSON("orderId").String())
	return nil
}

func (g *Gateway) registerPayment(ctx context.Context, s *loadgen.Session) error {
	orderID, ok := s.Get(keyOrderID)
	if !ok {
		return nil
	}

	body, err := payload(
		"isPayed", false,
		"paymentStatus", "NOT_STARTED",
		"order.orderId", jsonID(orderID),
	)
	if err != nil {
		return err
	}

	return s.Do(ctx, loadgen.Request{
		Method: http.MethodPost,
		Path:   "/payment-service/api/payments",
		Name:   "payments:create",
		Body:   body,
		Expect: created,
		Action: "Payment creation",
	}).Err
}

func (g *Gateway) listOrders(ctx context.Context, s *loadgen.Session) error {
	return s.Do(ctx, loadgen.Request{
		Method: http.MethodGet,
		Path:   "/order-service/api/orders",
		Name:   "orders:list",
		Expect: []int{http.StatusOK},
		Action: "Orders list",
	}).Err
}

var _ loadgen.Journey = (*Gateway)(nil)
