package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/prospect-pipeline/internal/errors"
)

func TestExtractItemsShapes(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		count int
		next  string
	}{
		{"bare list", `[{"taxId":"1"},{"taxId":"2"}]`, 2, ""},
		{"records", `{"records":[{"taxId":"1"}],"next":"abc"}`, 1, "abc"},
		{"items", `{"items":[{"taxId":"1"},{"taxId":"2"}]}`, 2, ""},
		{"data", `{"data":[{"taxId":"1"}]}`, 1, ""},
		{"results", `{"results":[{"taxId":"1"}]}`, 1, ""},
		{"empty records falls through", `{"records":[],"data":[{"taxId":"1"}]}`, 1, ""},
		{"unknown object", `{"foo":[{"taxId":"1"}]}`, 0, ""},
		{"scalar", `42`, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, next := ExtractItems([]byte(tt.body))
			assert.Len(t, items, tt.count)
			assert.Equal(t, tt.next, next)
		})
	}
}

func TestExtractItemsFailsClosedOnGarbage(t *testing.T) {
	for _, body := range []string{"<html>", "", `{"records":[`} {
		items, next := ExtractItems([]byte(body))
		assert.Empty(t, items, body)
		assert.Empty(t, next, body)
	}
}

func TestNormalizeOffice(t *testing.T) {
	items, _ := ExtractItems([]byte(`[{
		"taxId": "12345678000195",
		"company": {"name": "ACME Ltda"},
		"address": {"city": "São Paulo", "state": "SP", "street": "Rua A", "number": "100", "district": "Centro"},
		"mainActivity": {"id": 5611201},
		"founded": "2024-03-01",
		"phones": [{"area": "11", "number": "987654321"}],
		"emails": [{"address": "contato@acme.com"}]
	}]`))
	require.Len(t, items, 1)

	o := NormalizeOffice(items[0])
	assert.Equal(t, "12345678000195", o.TaxID)
	assert.Equal(t, "ACME Ltda", o.LegalName)
	assert.Equal(t, "(11)987654321", o.Phone)
	assert.Equal(t, "contato@acme.com", o.Email)
	assert.Equal(t, "5611201", o.ActivityCode)
	assert.Equal(t, "Rua A 100, Centro, São Paulo-SP", o.Address)
	assert.Equal(t, "SP", o.State)
	assert.Equal(t, "2024-03-01", o.FoundedOn)
}

func TestNormalizeOfficeFallbacks(t *testing.T) {
	items, _ := ExtractItems([]byte(`[{"taxId":"1","alias":"Padaria","phones":["(21) 3456-7890"],"emails":["a@b.com"]}]`))
	require.Len(t, items, 1)

	o := NormalizeOffice(items[0])
	assert.Equal(t, "Padaria", o.LegalName)
	assert.Equal(t, "(21) 3456-7890", o.Phone)
	assert.Equal(t, "a@b.com", o.Email)
	assert.Empty(t, o.Address)
	assert.Empty(t, o.ActivityCode)
}

func TestFetchOffices(t *testing.T) {
	var gotQuery, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/office", r.URL.Path)
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"records":[{"taxId":"12345678000195"}],"next":"cursor-2"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", time.Second, WithPageSize(10))
	from := time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC)
	page, err := c.FetchOffices(context.Background(), from, from.AddDate(0, 0, 30), "cursor-1")
	require.NoError(t, err)

	assert.Equal(t, "secret", gotAuth)
	assert.Contains(t, gotQuery, "founded.gte=2024-02-03")
	assert.Contains(t, gotQuery, "founded.lte=2024-03-04")
	assert.Contains(t, gotQuery, "limit=10")
	assert.Contains(t, gotQuery, "token=cursor-1")
	require.Len(t, page.Offices, 1)
	assert.Equal(t, "cursor-2", page.Next)
}

func TestFetchOfficesUndecodableBodyIsEmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	}))
	defer srv.Close()

	page, err := NewClient(srv.URL, "secret", time.Second).FetchOffices(context.Background(), time.Now(), time.Now(), "")
	require.NoError(t, err)
	assert.Empty(t, page.Offices)
	assert.Empty(t, page.Next)
}

func TestFetchOfficesNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("rate limited"))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "secret", time.Second).FetchOffices(context.Background(), time.Now(), time.Now(), "")
	var ce *appErrors.CollaboratorError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, http.StatusTooManyRequests, ce.Status)
	assert.Equal(t, "rate limited", ce.Body)
}

func TestFetchOfficesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "secret", 20*time.Millisecond).FetchOffices(context.Background(), time.Now(), time.Now(), "")
	var ce *appErrors.CollaboratorError
	require.True(t, errors.As(err, &ce))
	assert.False(t, ce.Definite())
}

func TestFetchOfficesWithoutKey(t *testing.T) {
	_, err := NewClient("http://unused", "", time.Second).FetchOffices(context.Background(), time.Now(), time.Now(), "")
	assert.True(t, appErrors.IsConfig(err))
}
