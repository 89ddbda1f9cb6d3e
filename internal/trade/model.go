package trade

import "image"

// MaxItems is the number of item slots on each side of a trade.
const MaxItems = 4

// Status is the user-facing state of a trade.
type Status string

const (
	StatusOpen      Status = "Open"
	StatusInbound   Status = "Inbound"
	StatusOutbound  Status = "Outbound"
	StatusCompleted Status = "Completed"
	StatusDeclined  Status = "Declined"
	StatusExpired   Status = "Expired"
	StatusInactive  Status = "Inactive"
)

// SideName names one side of a trade relative to the watched account.
type SideName string

const (
	Give SideName = "give"
	Take SideName = "take"
)

// Item is one asset in a trade slot.
type Item struct {
	ID                 int64 // user-asset id
	AssetID            int64
	Name               string
	SerialNumber       *int64
	RecentAveragePrice int64
	OriginalPrice      *int64
	AssetStock         *int64
	// ExternalValue is 0 when the asset has no external valuation.
	ExternalValue int64
	Thumbnail     image.Image
}

// User is a trade party.
type User struct {
	ID          int64
	Name        string
	DisplayName string
}

// Side is what one party puts into the trade.
type Side struct {
	User  User
	Items [MaxItems]*Item
	Robux int64
}

// ItemCount returns the number of occupied slots.
func (s *Side) ItemCount() int {
	n := 0
	for _, it := range s.Items {
		if it != nil {
			n++
		}
	}
	return n
}

// RAP sums the recent average price of every item.
func (s *Side) RAP() int64 {
	var total int64
	for _, it := range s.Items {
		if it != nil {
			total += it.RecentAveragePrice
		}
	}
	return total
}

// Value sums the external value of every item. With includeUnvalued, items
// without an external value contribute their RAP instead.
func (s *Side) Value(includeUnvalued bool) int64 {
	var total int64
	for _, it := range s.Items {
		if it == nil {
			continue
		}
		if it.ExternalValue > 0 {
			total += it.ExternalValue
		} else if includeUnvalued {
			total += it.RecentAveragePrice
		}
	}
	return total
}

// TradeView is a normalized trade seen from the watched account.
type TradeView struct {
	TradeID                int64
	Status                 Status
	Give                   Side
	Take                   Side
	IncludeUnvaluedInTotal bool
}

// Side returns the named side.
func (v *TradeView) Side(name SideName) *Side {
	if name == Take {
		return &v.Take
	}
	return &v.Give
}

// AssetIDs returns every distinct asset id in the trade, in slot order.
func (v *TradeView) AssetIDs() []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, side := range []*Side{&v.Give, &v.Take} {
		for _, it := range side.Items {
			if it == nil {
				continue
			}
			if _, ok := seen[it.AssetID]; ok {
				continue
			}
			seen[it.AssetID] = struct{}{}
			ids = append(ids, it.AssetID)
		}
	}
	return ids
}

// AttachThumbnails sets the thumbnail of every item whose asset id is in
// images. Items sharing an asset id share the image.
func (v *TradeView) AttachThumbnails(images map[int64]image.Image) {
	for _, side := range []*Side{&v.Give, &v.Take} {
		for _, it := range side.Items {
			if it == nil {
				continue
			}
			if img, ok := images[it.AssetID]; ok {
				it.Thumbnail = img
			}
		}
	}
}
