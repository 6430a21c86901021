package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// Account is the buyer profile kept by the accounts service. It only enriches
// display and search; orders never depend on it.
type Account struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	StoreName      string `json:"storeName"`
	RepName        string `json:"repName"`
	Mobile         string `json:"mobile"`
	Address        string `json:"address"`
	Recommender    string `json:"recommender"`
	BusinessNumber string `json:"businessNumber"`
}

// Directory looks accounts up. ok is false when the account does not exist.
type Directory interface {
	Lookup(ctx context.Context, userID string) (a Account, ok bool, err error)
}

type client struct {
	http *resty.Client
}

func NewClient(baseURL string) Directory {
	return &client{http: resty.New().SetBaseURL(baseURL).SetTimeout(3 * time.Second)}
}

func (c *client) Lookup(ctx context.Context, userID string) (Account, bool, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		Get("/api/accounts/" + url.PathEscape(userID))
	if err != nil {
		return Account{}, false, err
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		var a Account
		if err := json.Unmarshal(resp.Body(), &a); err != nil {
			return Account{}, false, fmt.Errorf("decode account %s: %w", userID, err)
		}
		return a, true, nil
	case http.StatusNotFound:
		return Account{}, false, nil
	default:
		return Account{}, false, fmt.Errorf("accounts request status: %d", resp.StatusCode())
	}
}
