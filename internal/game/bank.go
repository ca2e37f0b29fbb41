package game

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/resonara/server/internal/message"
	"github.com/resonara/server/internal/persist"
	"go.uber.org/zap"
)

func (d *Deps) handleDeposit(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.Deposit
	if err := env.Decode(&req); err != nil || strings.TrimSpace(req.CurrencyName) == "" {
		s.Conn.Send(message.Error("deposit what?"))
		return
	}
	if !d.requireRoomKind(ctx, s, "bank") {
		return
	}

	wallet, err := d.Currency.PlayerCurrency(ctx, s.PlayerID)
	if err != nil {
		s.Conn.Send(message.Error("could not check your purse"))
		return
	}
	stack, ok := matchCurrency(wallet, req.CurrencyName)
	if !ok {
		s.Conn.Send(message.Text(d.Templates.Render("bank_no_currency",
			"You carry no {currency}.", map[string]any{"currency": req.CurrencyName})))
		return
	}
	qty, err := parseQuantity(req.Quantity, stack.Quantity)
	if err != nil {
		s.Conn.Send(message.Error("bad quantity"))
		return
	}
	if qty > stack.Quantity {
		s.Conn.Send(message.Text(d.Templates.Render("bank_insufficient",
			"You don't have that much to deposit.", nil)))
		return
	}

	err = d.Tx.WithTx(ctx, func(ctx context.Context) error {
		removed, err := d.Currency.RemovePlayerCurrency(ctx, s.PlayerID, stack.Name, qty)
		if err != nil {
			return err
		}
		if !removed {
			return errGone
		}
		return d.Currency.Deposit(ctx, s.PlayerID, stack.Name, qty)
	})
	if err != nil {
		if err != errGone {
			d.Log.Error("deposit", zap.Error(err))
		}
		s.Conn.Send(message.Error("could not deposit that"))
		return
	}

	balance, _ := d.Currency.BankBalance(ctx, s.PlayerID)
	s.Conn.Send(message.Text(d.Templates.Render("bank_deposit",
		"You deposit {quantity} {item}. Balance: {balance}.",
		map[string]any{"quantity": qty, "item": stack.Name, "balance": formatCurrency(balance)})))
	d.sendPlayerStats(ctx, s)
}

// handleWithdraw routes on the room: banks hand out currency, warehouses
// hand out stored items.
func (d *Deps) handleWithdraw(ctx context.Context, s *SessionState, env message.Envelope) {
	var req message.Withdraw
	if err := env.Decode(&req); err != nil {
		s.Conn.Send(message.Error("withdraw what?"))
		return
	}
	room, err := d.Rooms.GetByID(ctx, s.Room())
	if err != nil || room == nil {
		s.Conn.Send(message.Error("could not load the room"))
		return
	}
	switch room.Kind {
	case "bank":
		name := req.CurrencyName
		if name == "" {
			name = req.ItemName
		}
		d.bankWithdraw(ctx, s, name, req.Quantity)
	case "warehouse":
		d.warehouseWithdraw(ctx, s, req.ItemName, req.Quantity)
	default:
		s.Conn.Send(message.Text(d.Templates.Render("not_implemented",
			"That is not something you can do here.", nil)))
	}
}

func (d *Deps) bankWithdraw(ctx context.Context, s *SessionState, currencyName, quantity string) {
	if strings.TrimSpace(currencyName) == "" {
		s.Conn.Send(message.Error("withdraw what?"))
		return
	}
	balance, err := d.Currency.BankBalance(ctx, s.PlayerID)
	if err != nil {
		s.Conn.Send(message.Error("could not check your account"))
		return
	}
	stack, ok := matchCurrency(balance, currencyName)
	if !ok {
		s.Conn.Send(message.Text(d.Templates.Render("bank_withdraw_insufficient",
			"Your account doesn't hold that much.", nil)))
		return
	}
	qty, err := parseQuantity(quantity, stack.Quantity)
	if err != nil {
		s.Conn.Send(message.Error("bad quantity"))
		return
	}
	if qty > stack.Quantity {
		s.Conn.Send(message.Text(d.Templates.Render("bank_withdraw_insufficient",
			"Your account doesn't hold that much.", nil)))
		return
	}

	err = d.Tx.WithTx(ctx, func(ctx context.Context) error {
		removed, err := d.Currency.Withdraw(ctx, s.PlayerID, stack.Name, qty)
		if err != nil {
			return err
		}
		if !removed {
			return errGone
		}
		return d.Currency.AddPlayerCurrency(ctx, s.PlayerID, stack.Name, qty)
	})
	if err != nil {
		if err != errGone {
			d.Log.Error("withdraw currency", zap.Error(err))
		}
		s.Conn.Send(message.Error("could not withdraw that"))
		return
	}

	remaining, _ := d.Currency.BankBalance(ctx, s.PlayerID)
	s.Conn.Send(message.Text(d.Templates.Render("bank_withdraw",
		"You withdraw {quantity} {item}. Balance: {balance}.",
		map[string]any{"quantity": qty, "item": stack.Name, "balance": formatCurrency(remaining)})))
	d.sendPlayerStats(ctx, s)
}

func (d *Deps) handleBalance(ctx context.Context, s *SessionState, env message.Envelope) {
	balance, err := d.Currency.BankBalance(ctx, s.PlayerID)
	if err != nil {
		s.Conn.Send(message.Error("could not check your account"))
		return
	}
	s.Conn.Send(message.Text(d.Templates.Render("bank_balance",
		"Your balance: {balance}.", map[string]any{"balance": formatCurrency(balance)})))
}

// handleWealth reports wallet plus bank holdings converted to the smallest
// denomination.
func (d *Deps) handleWealth(ctx context.Context, s *SessionState, env message.Envelope) {
	wallet, err := d.Currency.PlayerCurrency(ctx, s.PlayerID)
	if err != nil {
		s.Conn.Send(message.Error("could not check your purse"))
		return
	}
	bank, err := d.Currency.BankBalance(ctx, s.PlayerID)
	if err != nil {
		s.Conn.Send(message.Error("could not check your account"))
		return
	}
	walletTotal := totalValue(wallet)
	bankTotal := totalValue(bank)
	s.Conn.Send(message.Text(d.Templates.Render("wealth",
		"Wealth: {wallet} in hand, {bank} banked, {total} shards in all.",
		map[string]any{
			"wallet": walletTotal,
			"bank":   bankTotal,
			"total":  walletTotal + bankTotal,
		})))
}

func (d *Deps) requireRoomKind(ctx context.Context, s *SessionState, kind string) bool {
	room, err := d.Rooms.GetByID(ctx, s.Room())
	if err != nil || room == nil {
		s.Conn.Send(message.Error("could not load the room"))
		return false
	}
	if room.Kind != kind {
		s.Conn.Send(message.Text(d.Templates.Render("not_implemented",
			"That is not something you can do here.", nil)))
		return false
	}
	return true
}

// matchCurrency resolves a spoken currency name against held stacks. The
// generic "glimmer" forms pick the highest-value currency actually held,
// preferring crowns over shards; explicit crown/shard forms name their kind.
func matchCurrency(stacks []persist.CurrencyStack, name string) (persist.CurrencyStack, bool) {
	lower := strings.ToLower(strings.TrimSpace(name))
	held := make([]persist.CurrencyStack, 0, len(stacks))
	for _, st := range stacks {
		if st.Quantity > 0 {
			held = append(held, st)
		}
	}
	if len(held) == 0 {
		return persist.CurrencyStack{}, false
	}
	// Highest value first.
	sort.Slice(held, func(i, j int) bool { return held[i].Value > held[j].Value })

	switch lower {
	case "glimmer", "glimmers", "glim", "glims", "g":
		for _, st := range held {
			if strings.Contains(strings.ToLower(st.Name), "crown") {
				return st, true
			}
		}
		return held[0], true
	case "crown", "crowns":
		for _, st := range held {
			if strings.Contains(strings.ToLower(st.Name), "crown") {
				return st, true
			}
		}
		return persist.CurrencyStack{}, false
	case "shard", "shards":
		for _, st := range held {
			if strings.Contains(strings.ToLower(st.Name), "shard") {
				return st, true
			}
		}
		return persist.CurrencyStack{}, false
	}
	for _, st := range held {
		if strings.Contains(strings.ToLower(st.Name), lower) {
			return st, true
		}
	}
	return persist.CurrencyStack{}, false
}

// totalValue sums stacks in the smallest denomination.
func totalValue(stacks []persist.CurrencyStack) int {
	total := 0
	for _, st := range stacks {
		total += st.Quantity * st.Value
	}
	return total
}

func formatCurrency(stacks []persist.CurrencyStack) string {
	var parts []string
	for _, st := range stacks {
		if st.Quantity <= 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d %s", st.Quantity, st.Name))
	}
	if len(parts) == 0 {
		return "nothing"
	}
	return strings.Join(parts, ", ")
}

// debitCurrency spends cost (in the smallest denomination) from the wallet,
// breaking larger coins and returning change as needed. Caller checks the
// wallet can cover the cost.
func (d *Deps) debitCurrency(ctx context.Context, playerID int64, cost int) error {
	wallet, err := d.Currency.PlayerCurrency(ctx, playerID)
	if err != nil {
		return err
	}
	// Spend small coins first so change stays minimal.
	sort.Slice(wallet, func(i, j int) bool { return wallet[i].Value < wallet[j].Value })

	remaining := cost
	for _, st := range wallet {
		if remaining <= 0 {
			break
		}
		if st.Quantity <= 0 || st.Value <= 0 {
			continue
		}
		use := (remaining + st.Value - 1) / st.Value
		if use > st.Quantity {
			use = st.Quantity
		}
		removed, err := d.Currency.RemovePlayerCurrency(ctx, playerID, st.Name, use)
		if err != nil {
			return err
		}
		if !removed {
			return errGone
		}
		remaining -= use * st.Value
	}
	if remaining > 0 {
		return errGone
	}
	if remaining < 0 {
		return d.creditCurrency(ctx, playerID, -remaining)
	}
	return nil
}

// creditCurrency pays out amount (smallest denomination) in the fewest
// coins the catalogue allows.
func (d *Deps) creditCurrency(ctx context.Context, playerID int64, amount int) error {
	if amount <= 0 {
		return nil
	}
	catalogue, err := d.Currency.CurrencyCatalogue(ctx)
	if err != nil {
		return err
	}
	sort.Slice(catalogue, func(i, j int) bool { return catalogue[i].CurrencyValue > catalogue[j].CurrencyValue })
	for _, def := range catalogue {
		if def.CurrencyValue <= 0 || amount < def.CurrencyValue {
			continue
		}
		qty := amount / def.CurrencyValue
		amount -= qty * def.CurrencyValue
		if err := d.Currency.AddPlayerCurrency(ctx, playerID, def.Name, qty); err != nil {
			return err
		}
	}
	return nil
}
