package trade

import (
	"errors"
	"fmt"
	"horizon/clients/roblox"
	"horizon/clients/rolimons"
	"strings"
)

var (
	// ErrOfferCount is returned when a trade does not have exactly two offers.
	ErrOfferCount = errors.New("trade does not have exactly two offers")

	// ErrUnknownParty is returned when the offers cannot be split into the
	// watched account and one counterparty.
	ErrUnknownParty = errors.New("trade offers do not match the watched account")

	// ErrTooManyItems is returned when one side holds more items than there
	// are slots.
	ErrTooManyItems = errors.New("trade side has more items than slots")
)

// Valuations looks up external valuations by asset id.
type Valuations interface {
	Lookup(assetID int64) (rolimons.Valuation, bool)
}

// Normalize turns a raw trade into a TradeView seen from watchedID. The
// offer belonging to watchedID becomes the give side. values may be nil, in
// which case every item is unvalued.
func Normalize(raw *roblox.TradeDetail, values Valuations, watchedID int64, includeUnvalued bool, fetched roblox.Direction) (*TradeView, error) {
	if raw == nil || len(raw.Offers) != 2 {
		return nil, ErrOfferCount
	}

	var give, take *roblox.Offer
	for i := range raw.Offers {
		offer := &raw.Offers[i]
		if offer.User.ID == watchedID && give == nil {
			give = offer
		} else if take == nil {
			take = offer
		}
	}
	if give == nil || take == nil || take.User.ID == watchedID {
		return nil, fmt.Errorf("trade %d: %w", raw.ID, ErrUnknownParty)
	}

	view := &TradeView{
		TradeID:                raw.ID,
		Status:                 resolveStatus(raw.Status, fetched),
		IncludeUnvaluedInTotal: includeUnvalued,
	}

	var err error
	if view.Give, err = normalizeSide(give, values); err != nil {
		return nil, fmt.Errorf("trade %d give side: %w", raw.ID, err)
	}
	if view.Take, err = normalizeSide(take, values); err != nil {
		return nil, fmt.Errorf("trade %d take side: %w", raw.ID, err)
	}

	return view, nil
}

func normalizeSide(offer *roblox.Offer, values Valuations) (Side, error) {
	side := Side{
		User: User{
			ID:          offer.User.ID,
			Name:        offer.User.Name,
			DisplayName: offer.User.DisplayName,
		},
		Robux: offer.Robux,
	}

	if len(offer.UserAssets) > MaxItems {
		return side, ErrTooManyItems
	}

	for i, asset := range offer.UserAssets {
		item := &Item{
			ID:            asset.ID,
			AssetID:       asset.AssetID,
			Name:          asset.Name,
			SerialNumber:  asset.SerialNumber,
			OriginalPrice: asset.OriginalPrice,
			AssetStock:    asset.AssetStock,
		}
		if asset.RecentAveragePrice != nil {
			item.RecentAveragePrice = *asset.RecentAveragePrice
		}
		if values != nil {
			if v, ok := values.Lookup(asset.AssetID); ok && v.Value > 0 {
				item.ExternalValue = v.Value
			}
		}
		side.Items[i] = item
	}

	return side, nil
}

// resolveStatus prefers the trade's own status. An empty or "Open" status
// says nothing about direction, so the fetch direction is used instead.
func resolveStatus(raw string, fetched roblox.Direction) Status {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.EqualFold(raw, string(StatusOpen)) {
		return Status(raw)
	}
	if fetched != "" {
		return Status(fetched)
	}
	if raw != "" {
		return Status(raw)
	}
	return StatusInbound
}
