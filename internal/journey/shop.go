package journey

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/wesleyorama2/perfgate/internal/loadgen"
)

// ShopName is the registry name of the shop journey.
const ShopName = "shop"

const (
	shopPassword = "PerfTest123!"

	keyToken     = "token"
	keyCartItems = "cart_items"
)

var (
	categories    = []string{"electronics", "books", "clothing"}
	preferences   = []string{"electronics", "books", "clothing", "home"}
	searchQueries = []string{"laptop", "book", "shirt", "phone", "tablet", "shoes"}
	statusOK      = []int{http.StatusOK}
	statusCreated = []int{http.StatusCreated}
)

const emptyCartItems = "[]"

// Shop is a storefront customer: register and log in, then browse,
// search, fill a cart, check out and pay.
type Shop struct {
	minWait, maxWait time.Duration
}

// NewShop creates the shop journey with a 1-3s wait between tasks.
func NewShop() *Shop {
	return &Shop{minWait: time.Second, maxWait: 3 * time.Second}
}

// Name implements loadgen.Journey.
func (*Shop) Name() string { return ShopName }

// Wait implements loadgen.Journey.
func (sh *Shop) Wait() (time.Duration, time.Duration) {
	return sh.minWait, sh.maxWait
}

// OnStart registers a new customer and logs in.
func (sh *Shop) OnStart(ctx context.Context, s *loadgen.Session) error {
	username := unique("perfuser", "_")
	s.Set(keyCartItems, emptyCartItems)

	body, err := payload(
		"username", username,
		"email", username+"@performance.com",
		"password", shopPassword,
		"firstName", "Performance",
		"lastName", "Tester",
		"phone", fmt.Sprintf("555-%d", 1000+s.Rand().Intn(9000)),
		"preferences", preferences[s.Rand().Intn(len(preferences))],
	)
	if err != nil {
		return err
	}

	resp := s.Do(ctx, loadgen.Request{
		Method: http.MethodPost,
		Path:   "/api/users/register",
		Body:   body,
		Expect: statusCreated,
		Action: "Registration",
	})
	if !resp.OK() {
		return resp.Err
	}
	setIfPresent(s, keyUserID, resp.JSON("id").String())

	body, err = payload("username", username, "password", shopPassword)
	if err != nil {
		return err
	}
	resp = s.Do(ctx, loadgen.Request{
		Method: http.MethodPost,
		Path:   "/api/auth/login",
		Body:   body,
		Expect: statusOK,
		Action: "Login",
	})
	if !resp.OK() {
		return resp.Err
	}
	setIfPresent(s, keyToken, resp.JSON("token").String())
	return nil
}

// Tasks implements loadgen.Journey.
func (sh *Shop) Tasks() []loadgen.Task {
	return []loadgen.Task{
		{Name: "browse", Weight: 8, Run: sh.browse},
		{Name: "search", Weight: 6, Run: sh.search},
		{Name: "view", Weight: 5, Run: sh.view},
		{Name: "add-to-cart", Weight: 4, Run: sh.addToCart},
		{Name: "view-cart", Weight: 3, Run: sh.viewCart},
		{Name: "update-cart", Weight: 2, Run: sh.updateCart},
		{Name: "checkout-and-pay", Weight: 1, Run: sh.checkoutAndPay},
		{Name: "order-history", Weight: 1, Run: sh.orderHistory},
		{Name: "add-to-favorites", Weight: 1, Run: sh.addToFavorites},
	}
}

func authHeaders(s *loadgen.Session) map[string]string {
	token, _ := s.Get(keyToken)
	return map[string]string{"Authorization": "Bearer " + token}
}

func (sh *Shop) browse(ctx context.Context, s *loadgen.Session) error {
	rng := s.Rand()
	query := url.Values{}
	if rng.Float64() < 0.3 {
		query.Set("category", categories[rng.Intn(len(categories))])
	}
	if rng.Float64() < 0.2 {
		query.Set("minPrice", strconv.Itoa(10+rng.Intn(91)))
	}
	if rng.Float64() < 0.2 {
		query.Set("maxPrice", strconv.Itoa(100+rng.Intn(401)))
	}

	path := "/api/products"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	resp := s.Do(ctx, loadgen.Request{
		Method:  http.MethodGet,
		Path:    path,
		Name:    "/api/products",
		Headers: authHeaders(s),
		Expect:  statusOK,
		Action:  "Browse",
	})
	if !resp.OK() {
		return resp.Err
	}
	setIfPresent(s, keyProductID, resp.JSON("0.id").String())
	return nil
}

func (sh *Shop) search(ctx context.Context, s *loadgen.Session) error {
	q := searchQueries[s.Rand().Intn(len(searchQueries))]
	return s.Do(ctx, loadgen.Request{
		Method:  http.MethodGet,
		Path:    "/api/products/search?query=" + url.QueryEscape(q),
		Name:    "/api/products/search",
		Headers: authHeaders(s),
		Expect:  statusOK,
		Action:  "Search",
	}).Err
}

func (sh *Shop) view(ctx context.Context, s *loadgen.Session) error {
	productID, ok := s.Get(keyProductID)
	if !ok {
		return nil
	}
	return s.Do(ctx, loadgen.Request{
		Method:  http.MethodGet,
		Path:    "/api/products/" + productID,
		Name:    "/api/products/{id}",
		Headers: authHeaders(s),
		Expect:  statusOK,
		Action:  "Product view",
	}).Err
}

func (sh *Shop) addToCart(ctx context.Context, s *loadgen.Session) error {
	productID, ok := s.Get(keyProductID)
	if !ok {
		return nil
	}
	userID, _ := s.Get(keyUserID)
	quantity := 1 + s.Rand().Intn(5)

	body, err := payload(
		"userId", jsonID(userID),
		"productId", jsonID(productID),
		"quantity", quantity,
	)
	if err != nil {
		return err
	}

	resp := s.Do(ctx, loadgen.Request{
		Method:  http.MethodPost,
		Path:    "/api/cart/items",
		Body:    body,
		Headers: authHeaders(s),
		Expect:  statusCreated,
		Action:  "Add to cart",
	})
	if !resp.OK() {
		return resp.Err
	}

	items, _ := s.Get(keyCartItems)
	item, err := payload("productId", productID, "quantity", quantity)
	if err != nil {
		return err
	}
	items, err = sjson.SetRaw(items, "-1", string(item))
	if err != nil {
		return fmt.Errorf("failed to track cart item: %w", err)
	}
	s.Set(keyCartItems, items)
	return nil
}

func (sh *Shop) viewCart(ctx context.Context, s *loadgen.Session) error {
	userID, ok := s.Get(keyUserID)
	if !ok {
		return nil
	}
	return s.Do(ctx, loadgen.Request{
		Method:  http.MethodGet,
		Path:    "/api/cart/user/" + userID,
		Name:    "/api/cart/user/{id}",
		Headers: authHeaders(s),
		Expect:  statusOK,
		Action:  "View cart",
	}).Err
}

func (sh *Shop) updateCart(ctx context.Context, s *loadgen.Session) error {
	items, _ := s.Get(keyCartItems)
	count := int(gjson.Get(items, "#").Int())
	if count == 0 {
		return nil
	}

	i := s.Rand().Intn(count)
	productID := gjson.Get(items, fmt.Sprintf("%d.productId", i)).String()
	quantity := 1 + s.Rand().Intn(10)

	body, err := payload("quantity", quantity)
	if err != nil {
		return err
	}

	resp := s.Do(ctx, loadgen.Request{
		Method:  http.MethodPut,
		Path:    "/api/cart/items/" + productID,
		Name:    "/api/cart/items/{id}",
		Body:    body,
		Headers: authHeaders(s),
		Expect:  statusOK,
		Action:  "Update cart",
	})
	if !resp.OK() {
		return resp.Err
	}

	items, err = sjson.Set(items, fmt.Sprintf("%d.quantity", i), quantity)
	if err != nil {
		return fmt.Errorf("failed to track cart item: %w", err)
	}
	s.Set(keyCartItems, items)
	return nil
}

func (sh *Shop) checkoutAndPay(ctx context.Context, s *loadgen.Session) error {
	userID, ok := s.Get(keyUserID)
	if !ok {
		return nil
	}

	resp := s.Do(ctx, loadgen.Request{
		Method:  http.MethodPost,
		Path:    "/api/orders/checkout/" + userID,
		Name:    "/api/orders/checkout/{id}",
		Headers: authHeaders(s),
		Expect:  statusCreated,
		Action:  "Checkout",
	})
	if !resp.OK() {
		return resp.Err
	}
	orderID := resp.JSON("id").String()
	setIfPresent(s, keyOrderID, orderID)

	body, err := payload(
		"orderId", jsonID(orderID),
		"paymentMethod", "CREDIT_CARD",
		"cardNumber", "4111111111111111",
		"cardHolder", "Performance Tester",
		"expiryDate", "12/25",
		"cvv", "123",
	)
	if err != nil {
		return err
	}

	return s.Do(ctx, loadgen.Request{
		Method:  http.MethodPost,
		Path:    "/api/payments/process",
		Body:    body,
		Headers: authHeaders(s),
		Expect:  statusOK,
		Action:  "Payment",
	}).Err
}

func (sh *Shop) orderHistory(ctx context.Context, s *loadgen.Session) error {
	userID, ok := s.Get(keyUserID)
	if !ok {
		return nil
	}
	return s.Do(ctx, loadgen.Request{
		Method:  http.MethodGet,
		Path:    "/api/orders/user/" + userID,
		Name:    "/api/orders/user/{id}",
		Headers: authHeaders(s),
		Expect:  statusOK,
		Action:  "Order history",
	}).Err
}

func (sh *Shop) addToFavorites(ctx context.Context, s *loadgen.Session) error {
	productID, ok := s.Get(keyProductID)
	if !ok {
		return nil
	}
	userID, _ := s.Get(keyUserID)

	body, err := payload("userId", jsonID(userID), "productId", jsonID(productID))
	if err != nil {
		return err
	}
	return s.Do(ctx, loadgen.Request{
		Method:  http.MethodPost,
		Path:    "/api/favorites",
		Body:    body,
		Headers: authHeaders(s),
		Expect:  statusCreated,
		Action:  "Add to favorites",
	}).Err
}

var _ loadgen.Journey = (*Shop)(nil)
