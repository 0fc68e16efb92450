package types

// Address is the shipping target snapshot denormalized onto each order.
// The order keeps its own copy so history survives address-book edits.
type Address struct {
	RecipientName string `json:"recipient_name"`
	Phone         string `json:"phone"`
	Line1         string `json:"line1"`
	Ward          string `json:"ward"`
	WardCode      string `json:"ward_code"`
	District      string `json:"district"`
	DistrictID    int    `json:"district_id"`
	Province      string `json:"province"`
	Country       string `json:"country"`
}
