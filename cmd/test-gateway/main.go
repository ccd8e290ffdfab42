// Command test-gateway serves a stub of the e-commerce gateway so the load
// generator can be tried without the real services.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

type gateway struct {
	latency   time.Duration
	errorRate float64
	nextID    atomic.Int64
}

func (g *gateway) id() int64 {
	return g.nextID.Add(1)
}

// stub wraps a handler with the configured delay and failure injection.
func (g *gateway) stub(status int, body func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.latency > 0 {
			time.Sleep(time.Duration(rand.Int63n(int64(g.latency)) + int64(g.latency)/2))
		}
		if g.errorRate > 0 && rand.Float64() < g.errorRate {
			http.Error(w, `{"error":"injected failure"}`, http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body())
	}
}

func (g *gateway) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "healthy")
	})
	mux.Handle("POST /user-service/api/users", g.stub(http.StatusCreated, func() string {
		return fmt.Sprintf(`{"userId":%d}`, g.id())
	}))
	mux.Handle("POST /order-service/api/carts", g.stub(http.StatusCreated, func() string {
		return fmt.Sprintf(`{"cartId":%d}`, g.id())
	}))
	mux.Handle("GET /product-service/api/products", g.stub(http.StatusOK, func() string {
		return `{"collection":[{"productId":1},{"productId":2},{"productId":3},{"productId":4}]}`
	}))
	mux.Handle("GET /product-service/api/products/{id}", g.stub(http.StatusOK, func() string {
		return `{"productId":1,"productTitle":"stub","priceUnit":9.99}`
	}))
	mux.Handle("POST /order-service/api/orders", g.stub(http.StatusCreated, func() string {
		return fmt.Sprintf(`{"orderId":%d}`, g.id())
	}))
	mux.Handle("GET /order-service/api/orders", g.stub(http.StatusOK, func() string {
		return `{"collection":[]}`
	}))
	mux.Handle("POST /payment-service/api/payments", g.stub(http.StatusCreated, func() string {
		return fmt.Sprintf(`{"paymentId":%d,"isPayed":false}`, g.id())
	}))
	return mux
}

func main() {
	addr := flag.String("addr", ":8080", "Listen address")
	latency := flag.Duration("latency", 20*time.Millisecond, "Mean response delay")
	errorRate := flag.Float64("error-rate", 0, "Fraction of requests answered with 503")
	flag.Parse()

	log := logrus.New()
	g := &gateway{latency: *latency, errorRate: *errorRate}

	server := &http.Server{
		Addr:              *addr,
		Handler:           g.routes(),
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 2 * time.Second,
	}

	log.WithFields(logrus.Fields{
		"addr":       *addr,
		"latency":    *latency,
		"error_rate": *errorRate,
	}).Info("Starting test gateway")
	if err := server.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}
