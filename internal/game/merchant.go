package game

import (
	"context"
	"strings"

	"github.com/resonara/server/internal/message"
	"github.com/resonara/server/internal/persist"
	"go.uber.org/zap"
)

func (d *Deps) handleMerchantList(ctx context.Context, s *SessionState, env message.Envelope) {
	if !d.requireRoomKind(ctx, s, "merchant") {
		return
	}
	items, err := d.Merchants.ItemsForList(ctx, s.Room())
	if err != nil {
		s.Conn.Send(message.Error("could not load the merchant's stock"))
		return
	}
	frame := &message.MerchantListFrame{Type: "merchantList"}
	for _, it := range items {
		frame.Items = append(frame.Items, message.MerchantEntry{
			Name:      it.ItemName,
			Price:     it.Price,
			SellPrice: it.SellPrice,
			Stock:     it.Stock,
			Unlimited: it.Unlimited,
		})
	}
	s.Conn.Send(frame)
}

func (d *Deps) handleBuy(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.Buy
	if err := env.Decode(&req); err != nil || strings.TrimSpace(req.ItemName) == "" {
		s.Conn.Send(message.Error("buy what?"))
		return
	}
	if !d.requireRoomKind(ctx, s, "merchant") {
		return
	}
	roomID := s.Room()
	stock, err := d.Merchants.ItemsForRoom(ctx, roomID)
	if err != nil {
		s.Conn.Send(message.Error("could not load the merchant's stock"))
		return
	}
	entry, ok := d.matchMerchant(s, stock, req.ItemName, "merchant_not_for_sale",
		"The merchant has no {item} for sale.")
	if !ok {
		return
	}
	if entry.Price <= 0 {
		s.Conn.Send(message.Text(d.Templates.Render("merchant_not_for_sale",
			"The merchant has no {item} for sale.", map[string]any{"item": entry.ItemName})))
		return
	}

	available := entry.Stock
	if entry.Unlimited {
		available = 1 << 30
	}
	qty, err := parseQuantity(req.Quantity, available)
	if err != nil {
		s.Conn.Send(message.Error("bad quantity"))
		return
	}
	if !entry.Unlimited && qty > entry.Stock {
		s.Conn.Send(message.Text(d.Templates.Render("merchant_out_of_stock",
			"The merchant is out of {item}.", map[string]any{"item": entry.ItemName})))
		return
	}

	cost := entry.Price * qty
	wallet, err := d.Currency.PlayerCurrency(ctx, s.PlayerID)
	if err != nil {
		s.Conn.Send(message.Error("could not check your purse"))
		return
	}
	if totalValue(wallet) < cost {
		s.Conn.Send(message.Text(d.Templates.Render("merchant_cannot_afford",
			"You cannot afford {quantity} {item} ({price} shards).",
			map[string]any{"quantity": qty, "item": entry.ItemName, "price": cost})))
		return
	}

	err = d.Tx.WithTx(ctx, func(ctx context.Context) error {
		if err := d.debitCurrency(ctx, s.PlayerID, cost); err != nil {
			return err
		}
		if err := d.Items.AddPlayerItem(ctx, s.PlayerID, entry.ItemName, qty); err != nil {
			return err
		}
		if !entry.Unlimited {
			return d.Merchants.AdjustStock(ctx, roomID, entry.ItemName, -qty)
		}
		return nil
	})
	if err != nil {
		if err != errGone {
			d.Log.Error("buy", zap.Error(err))
		}
		s.Conn.Send(message.Error("the purchase fell through"))
		return
	}

	s.Conn.Send(message.Text(d.Templates.Render("merchant_bought",
		"You buy {quantity} {item} for {price} shards.",
		map[string]any{"quantity": qty, "item": entry.ItemName, "price": cost})))
	d.sendPlayerStats(ctx, s)
	d.sendInventory(ctx, s)
}

func (d *Deps) handleSell(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.Sell
	if err := env.Decode(&req); err != nil || strings.TrimSpace(req.ItemName) == "" {
		s.Conn.Send(message.Error("sell what?"))
		return
	}
	if !d.requireRoomKind(ctx, s, "merchant") {
		return
	}
	roomID := s.Room()

	inventory, err := d.Items.PlayerItems(ctx, s.PlayerID)
	if err != nil {
		s.Conn.Send(message.Error("could not check your inventory"))
		return
	}
	stack, found := d.matchStack(s, inventory, req.ItemName)
	if !found {
		s.Conn.Send(message.Text(d.Templates.Render("merchant_dont_have",
			"You don't have a {item} to sell.", map[string]any{"item": req.ItemName})))
		return
	}

	stock, err := d.Merchants.ItemsForRoom(ctx, roomID)
	if err != nil {
		s.Conn.Send(message.Error("could not load the merchant's stock"))
		return
	}
	var entry *persist.MerchantItem
	for i := range stock {
		if strings.EqualFold(stock[i].ItemName, stack.Name) {
			entry = &stock[i]
			break
		}
	}
	if entry == nil || entry.SellPrice <= 0 {
		s.Conn.Send(message.Text(d.Templates.Render("merchant_wont_buy",
			"The merchant won't buy {item}.", map[string]any{"item": stack.Name})))
		return
	}

	qty, err := parseQuantity(req.Quantity, stack.Quantity)
	if err != nil {
		s.Conn.Send(message.Error("bad quantity"))
		return
	}
	if qty > stack.Quantity {
		s.Conn.Send(message.Text(d.Templates.Render("merchant_dont_have",
			"You don't have a {item} to sell.", map[string]any{"item": stack.Name})))
		return
	}

	proceeds := entry.SellPrice * qty
	err = d.Tx.WithTx(ctx, func(ctx context.Context) error {
		removed, err := d.Items.RemovePlayerItem(ctx, s.PlayerID, stack.Name, qty)
		if err != nil {
			return err
		}
		if !removed {
			return errGone
		}
		if err := d.creditCurrency(ctx, s.PlayerID, proceeds); err != nil {
			return err
		}
		if !entry.Unlimited {
			return d.Merchants.AdjustStock(ctx, roomID, entry.ItemName, qty)
		}
		return nil
	})
	if err != nil {
		if err != errGone {
			d.Log.Error("sell", zap.Error(err))
		}
		s.Conn.Send(message.Error("the sale fell through"))
		return
	}

	s.Conn.Send(message.Text(d.Templates.Render("merchant_sold",
		"You sell {quantity} {item} for {price} shards.",
		map[string]any{"quantity": qty, "item": stack.Name, "price": proceeds})))
	d.sendPlayerStats(ctx, s)
	d.sendInventory(ctx, s)
}

// matchMerchant partial-matches an item against a merchant catalogue.
func (d *Deps) matchMerchant(s *SessionState, stock []persist.MerchantItem, needle, missTemplate, missFallback string) (*persist.MerchantItem, bool) {
	lower := strings.ToLower(strings.TrimSpace(needle))
	var matches []*persist.MerchantItem
	for i := range stock {
		if strings.EqualFold(stock[i].ItemName, lower) {
			return &stock[i], true
		}
		if strings.Contains(strings.ToLower(stock[i].ItemName), lower) {
			matches = append(matches, &stock[i])
		}
	}
	switch len(matches) {
	case 0:
		s.Conn.Send(message.Text(d.Templates.Render(missTemplate, missFallback,
			map[string]any{"item": needle})))
		return nil, false
	case 1:
		return matches[0], true
	default:
		names := make([]string, 0, len(matches))
		for _, m := range matches {
			names = append(names, m.ItemName)
		}
		s.Conn.Send(message.Text(d.Templates.Render("item_ambiguous",
			"Which do you mean: [candidates]?", map[string]any{"candidates": names})))
		return nil, false
	}
}
