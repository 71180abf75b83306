package elisa

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"house-finder/client"
	"house-finder/storage"
	"house-finder/utils"
)

func newServer(t *testing.T, productCalls *int64) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/address/search/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/address/search/33100/Testikatu 1" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`[{"addressId":101},{"addressId":102}]`))
	})
	mux.HandleFunc("/products/fixedBroadbandProducts/33100/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(productCalls, 1)
		switch r.URL.Path {
		case "/products/fixedBroadbandProducts/33100/101":
			_, _ = w.Write([]byte(`{"fbbProducts":[
				{"name":"Kuitu 1000M","type":"fiber","price":49.9,"dataSpeedInKbps":1000000,"deliveryDate":"2024-02-01"},
				{"name":"Mobiili 5G","type":"fixedWirelessBroadband","price":29.9,"dataSpeedInKbps":300000}
			]}`))
		case "/products/fixedBroadbandProducts/33100/102":
			_, _ = w.Write([]byte(`{"fbbProducts":[{"name":"Kaapeli","type":"cable","price":19.9,"dataSpeedInKbps":0}]}`))
		default:
			http.NotFound(w, r)
		}
	})
	return httptest.NewServer(mux)
}

func TestOffers(t *testing.T) {
	var productCalls int64
	srv := newServer(t, &productCalls)
	defer srv.Close()

	c := client.New("elisa")
	p := New(c, c, false, utils.NewLogger(), WithBaseURL(srv.URL))

	offers, err := p.Offers(context.Background(), "33100", "Testikatu 1")
	if err != nil {
		t.Fatalf("Offers: %v", err)
	}
	if len(offers) != 2 {
		t.Fatalf("offers: got %d (%+v), want 2 with the mobile product dropped", len(offers), offers)
	}

	fiber := offers[0]
	if fiber.Name != "Kuitu 1000M (fiber)" || fiber.Mbps != 1000 || fiber.EurosPerMonth != 49.9 || fiber.DeliveryDate != "2024-02-01" {
		t.Errorf("unexpected fiber offer: %+v", fiber)
	}
	if offers[1].Mbps != 0 {
		t.Errorf("unknown speed should stay 0: %+v", offers[1])
	}
}

func TestOffersCachesProductsWhenEnabled(t *testing.T) {
	var productCalls int64
	srv := newServer(t, &productCalls)
	defer srv.Close()

	root := t.TempDir()
	addresses := client.New("elisa", client.WithCache(storage.NewFileCache(root, "elisa/address/search", "json")))
	products := client.New("elisa", client.WithCache(storage.NewFileCache(root, "elisa/products", "json")))
	p := New(addresses, products, true, utils.NewLogger(), WithBaseURL(srv.URL))

	for i := 0; i < 2; i++ {
		if _, err := p.Offers(context.Background(), "33100", "Testikatu 1"); err != nil {
			t.Fatal(err)
		}
	}
	if productCalls != 2 {
		t.Errorf("product calls: got %d, want 2 (one per address, then cached)", productCalls)
	}
}

func TestOffersUnknownAddress(t *testing.T) {
	var productCalls int64
	srv := newServer(t, &productCalls)
	defer srv.Close()

	c := client.New("elisa")
	p := New(c, c, false, utils.NewLogger(), WithBaseURL(srv.URL))

	_, err := p.Offers(context.Background(), "99999", "Nowhere")
	if !errors.Is(err, client.ErrStatus) {
		t.Errorf("expected status error, got %v", err)
	}
}
