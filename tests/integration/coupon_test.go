//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"
)

func uniqueCode(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, time.Now().UnixNano())
}

func TestApply(t *testing.T) {
	tests := []struct {
		name       string
		req        applyRequest
		wantStatus int
		wantApply  float64
	}{
		{
			name:       "applied above minimum",
			req:        applyRequest{Code: "1111", Basket: basketRequest{Value: 100}},
			wantStatus: http.StatusOK,
			wantApply:  10,
		},
		{
			name:       "applied at minimum with other case",
			req:        applyRequest{Code: "WELCOME5", Basket: basketRequest{Value: 20}},
			wantStatus: http.StatusOK,
			wantApply:  5,
		},
		{
			name:       "below minimum",
			req:        applyRequest{Code: "1111", Basket: basketRequest{Value: 49.99}},
			wantStatus: http.StatusNotModified,
		},
		{
			name:       "unknown code",
			req:        applyRequest{Code: "does-not-exist", Basket: basketRequest{Value: 100}},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "negative basket",
			req:        applyRequest{Code: "1111", Basket: basketRequest{Value: -5}},
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doPost(t, "/api/apply", tt.req)
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			basket := decodeJSON[basketResponse](t, resp)
			if !basket.ApplicationSuccessful {
				t.Error("expected applicationSuccessful")
			}
			if basket.AppliedDiscount != tt.wantApply {
				t.Errorf("appliedDiscount: got %v, want %v", basket.AppliedDiscount, tt.wantApply)
			}
			if basket.Value != tt.req.Basket.Value {
				t.Errorf("value: got %v, want %v", basket.Value, tt.req.Basket.Value)
			}
		})
	}
}

func TestCreate_RequiresAPIKey(t *testing.T) {
	req := createRequest{Code: uniqueCode("noauth"), Discount: 5, MinBasketValue: 10}

	resp := doPost(t, "/api/create", req)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	resp2 := doPostWithAuth(t, "/api/create", req, "wrong-key")
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong key, got %d", resp2.StatusCode)
	}
}

func TestCreate_ThenApply(t *testing.T) {
	code := uniqueCode("SPRING")

	resp := doPostWithAuth(t, "/api/create", createRequest{Code: code, Discount: 7.5, MinBasketValue: 30}, testAPIKey)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	created := decodeJSON[couponResponse](t, resp)
	if created.Code == code {
		t.Fatalf("expected lower-cased code, got %q", created.Code)
	}

	resp2 := doPost(t, "/api/apply", applyRequest{Code: code, Basket: basketRequest{Value: 30}})
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp2.StatusCode)
	}
	if got := decodeJSON[basketResponse](t, resp2).AppliedDiscount; got != 7.5 {
		t.Errorf("appliedDiscount: got %v, want 7.5", got)
	}

	resp3 := doGet(t, "/api/coupons/"+created.Code)
	defer resp3.Body.Close()
	if resp3.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp3.StatusCode)
	}
}

func TestCreate_Duplicate(t *testing.T) {
	resp := doPostWithAuth(t, "/api/create", createRequest{Code: "1111", Discount: 99, MinBasketValue: 1}, testAPIKey)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	// The stored coupon is unchanged.
	resp2 := doGet(t, "/api/coupons/1111")
	defer resp2.Body.Close()
	if got := decodeJSON[couponResponse](t, resp2).Discount; got != 10 {
		t.Errorf("discount: got %v, want 10", got)
	}
}

func TestCreate_ConcurrentSameCode(t *testing.T) {
	code := uniqueCode("race")
	const n = 10

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[int]int{}
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp := doPostWithAuth(t, "/api/create", createRequest{Code: code, Discount: 1, MinBasketValue: 1}, testAPIKey)
			resp.Body.Close()

			mu.Lock()
			statuses[resp.StatusCode]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if statuses[http.StatusOK] != 1 || statuses[http.StatusConflict] != n-1 {
		t.Fatalf("expected exactly one 200 and %d 409s, got %v", n-1, statuses)
	}
}

func TestCreate_Validation(t *testing.T) {
	tests := []struct {
		name string
		req  createRequest
	}{
		{name: "zero discount", req: createRequest{Code: uniqueCode("v"), Discount: 0, MinBasketValue: 10}},
		{name: "negative minimum", req: createRequest{Code: uniqueCode("v"), Discount: 5, MinBasketValue: -1}},
		{name: "blank code", req: createRequest{Code: " ", Discount: 5, MinBasketValue: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doPostWithAuth(t, "/api/create", tt.req, testAPIKey)
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			if body := decodeJSON[errorResponse](t, resp); body.Code != http.StatusBadRequest {
				t.Errorf("error code: got %d", body.Code)
			}
		})
	}
}

func TestListCoupons(t *testing.T) {
	resp := doGetWithBody(t, "/api/coupons", lookupRequest{Codes: []string{"BIGSPENDER", "missing", "1111"}})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	coupons := decodeJSON[[]couponResponse](t, resp)
	if len(coupons) != 2 || coupons[0].Code != "bigspender" || coupons[1].Code != "1111" {
		t.Fatalf("unexpected coupons: %+v", coupons)
	}

	resp2 := doGet(t, "/api/coupons?code=1234")
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for query lookup, got %d", resp2.StatusCode)
	}

	resp3 := doGetWithBody(t, "/api/coupons", lookupRequest{Codes: []string{"missing"}})
	defer resp3.Body.Close()
	if resp3.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp3.StatusCode)
	}
	if got := decodeJSON[[]couponResponse](t, resp3); len(got) != 0 {
		t.Fatalf("expected empty list, got %+v", got)
	}
}
