package entity

// Category is the closed set of expense categories
type Category string

const (
	CategoryTravel    Category = "travel"
	CategoryMeals     Category = "meals"
	CategoryTransport Category = "transport"
	CategoryLodging   Category = "lodging"
	CategorySupplies  Category = "supplies"
	CategoryServices  Category = "services"
	CategoryOther     Category = "other"
)

var validCategories = map[Category]bool{
	CategoryTravel:    true,
	CategoryMeals:     true,
	CategoryTransport: true,
	CategoryLodging:   true,
	CategorySupplies:  true,
	CategoryServices:  true,
	CategoryOther:     true,
}

// IsValid reports whether c is one of the known categories
func (c Category) IsValid() bool {
	return validCategories[c]
}

// Payment method values accepted by mark_paid
const (
	PaymentMethodPix          = "pix"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCash         = "cash"
)
