package orders

import "time"

// Item is a line of an order, copied from the catalog at checkout.
// Later catalog price changes never touch it.
type Item struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int    `json:"price"`
}

// Order is the document kept in the order store. OrderNo is not part of the
// document: it is derived per client from the loaded list (see Number).
type Order struct {
	ID             string `json:"-"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	UserEmail      string `json:"userEmail"`
	Items          []Item `json:"items"`
	TotalAmount    int    `json:"totalAmount"`
	Date           string `json:"date"` // ISO 8601
	Status         Status `json:"status"`
	Depositor      string `json:"depositor,omitempty"`
	Courier        string `json:"courier,omitempty"`
	TrackingNumber string `json:"trackingNumber,omitempty"`

	OrderNo string `json:"-"`
}

// CreatedAt parses Date. ok is false when the date is missing or malformed.
func (o Order) CreatedAt() (t time.Time, ok bool) {
	if o.Date == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, o.Date)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Patch is a partial update. Nil fields are left as they are in the store.
type Patch struct {
	Status         *Status `json:"status,omitempty"`
	Courier        *string `json:"courier,omitempty"`
	TrackingNumber *string `json:"trackingNumber,omitempty"`
}

func (p Patch) Empty() bool {
	return p.Status == nil && p.Courier == nil && p.TrackingNumber == nil
}

// Apply returns o with the patch merged in, the same way the store merges it.
func (p Patch) Apply(o Order) Order {
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.Courier != nil {
		o.Courier = *p.Courier
	}
	if p.TrackingNumber != nil {
		o.TrackingNumber = *p.TrackingNumber
	}
	return o
}

func SetStatus(s Status) Patch { return Patch{Status: &s} }

func sumItems(items []Item) int {
	total := 0
	for _, it := range items {
		total += it.Price * it.Quantity
	}
	return total
}

// NewOrder builds a PENDING order document with the total computed from items.
func NewOrder(userID, userName, userEmail, depositor string, items []Item, now time.Time) Order {
	cp := make([]Item, len(items))
	copy(cp, items)
	return Order{
		UserID:      userID,
		UserName:    userName,
		UserEmail:   userEmail,
		Items:       cp,
		TotalAmount: sumItems(cp),
		Date:        now.UTC().Format(time.RFC3339Nano),
		Status:      StatusPending,
		Depositor:   depositor,
	}
}
