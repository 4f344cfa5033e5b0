package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store. Each transaction works on a copy of
// the state that replaces the committed state only when fn succeeds.
type MemoryStore struct {
	mu    sync.Mutex
	state memoryState
}

type orderItemKey struct {
	shopID  int64
	orderSN string
	itemID  int64
	modelID int64
}

type shopKey struct {
	shopID int64
	id     int64
}

type shopStringKey struct {
	shopID int64
	id     string
}

type memoryState struct {
	orders     map[shopStringKey]OrderRow
	orderItems map[orderItemKey]OrderItemRow
	products   map[shopKey]ProductRow
	variations map[shopKey]VariationRow
	returns    map[shopStringKey]ReturnRow
	inventory  []InventoryLogRow
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: memoryState{
		orders:     map[shopStringKey]OrderRow{},
		orderItems: map[orderItemKey]OrderItemRow{},
		products:   map[shopKey]ProductRow{},
		variations: map[shopKey]VariationRow{},
		returns:    map[shopStringKey]ReturnRow{},
	}}
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		orders:     make(map[shopStringKey]OrderRow, len(s.orders)),
		orderItems: make(map[orderItemKey]OrderItemRow, len(s.orderItems)),
		products:   make(map[shopKey]ProductRow, len(s.products)),
		variations: make(map[shopKey]VariationRow, len(s.variations)),
		returns:    make(map[shopStringKey]ReturnRow, len(s.returns)),
		inventory:  append([]InventoryLogRow(nil), s.inventory...),
	}
	for k, v := range s.orders {
		out.orders[k] = v
	}
	for k, v := range s.orderItems {
		out.orderItems[k] = v
	}
	for k, v := range s.products {
		out.products[k] = v
	}
	for k, v := range s.variations {
		out.variations[k] = v
	}
	for k, v := range s.returns {
		out.returns[k] = v
	}
	return out
}

func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if s == nil {
		return fmt.Errorf("reconcile: memory store is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &memoryTx{state: s.state.clone()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *MemoryStore) Orders() []OrderRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OrderRow, 0, len(s.state.orders))
	for _, row := range s.state.orders {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderSN < out[j].OrderSN })
	return out
}

func (s *MemoryStore) OrderItems(shopID int64, orderSN string) []OrderItemRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OrderItemRow
	for key, row := range s.state.orderItems {
		if key.shopID == shopID && key.orderSN == orderSN {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ItemID != out[j].ItemID {
			return out[i].ItemID < out[j].ItemID
		}
		return out[i].ModelID < out[j].ModelID
	})
	return out
}

func (s *MemoryStore) Products() []ProductRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ProductRow, 0, len(s.state.products))
	for _, row := range s.state.products {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out
}

func (s *MemoryStore) Variations(shopID int64, itemID int64) []VariationRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []VariationRow
	for _, row := range s.state.variations {
		if row.ShopID == shopID && row.ItemID == itemID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModelID < out[j].ModelID })
	return out
}

func (s *MemoryStore) InventoryLogs() []InventoryLogRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]InventoryLogRow(nil), s.state.inventory...)
}

func (s *MemoryStore) Returns() []ReturnRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ReturnRow, 0, len(s.state.returns))
	for _, row := range s.state.returns {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReturnSN < out[j].ReturnSN })
	return out
}

// Annotate sets the local note of an order item, standing in for edits made
// outside the sync path.
func (s *MemoryStore) Annotate(shopID int64, orderSN string, itemID int64, modelID int64, note string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := orderItemKey{shopID: shopID, orderSN: orderSN, itemID: itemID, modelID: modelID}
	row, ok := s.state.orderItems[key]
	if !ok {
		return false
	}
	row.Note = note
	s.state.orderItems[key] = row
	return true
}

type memoryTx struct {
	state memoryState
}

func (t *memoryTx) FindOrder(_ context.Context, shopID int64, orderSN string) (*OrderRow, error) {
	row, ok := t.state.orders[shopStringKey{shopID, orderSN}]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (t *memoryTx) InsertOrder(_ context.Context, row *OrderRow) error {
	key := shopStringKey{row.ShopID, row.OrderSN}
	if _, exists := t.state.orders[key]; exists {
		return ErrConflict
	}
	t.state.orders[key] = *row
	return nil
}

func (t *memoryTx) UpdateOrder(_ context.Context, row *OrderRow) error {
	key := shopStringKey{row.ShopID, row.OrderSN}
	if _, exists := t.state.orders[key]; !exists {
		return fmt.Errorf("reconcile: order %s does not exist", row.OrderSN)
	}
	t.state.orders[key] = *row
	return nil
}

func (t *memoryTx) FindOrderItem(_ context.Context, shopID int64, orderSN string, itemID int64, modelID int64) (*OrderItemRow, error) {
	row, ok := t.state.orderItems[orderItemKey{shopID, orderSN, itemID, modelID}]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (t *memoryTx) InsertOrderItem(_ context.Context, row *OrderItemRow) error {
	key := orderItemKey{row.ShopID, row.OrderSN, row.ItemID, row.ModelID}
	if _, exists := t.state.orderItems[key]; exists {
		return ErrConflict
	}
	t.state.orderItems[key] = *row
	return nil
}

func (t *memoryTx) UpdateOrderItem(_ context.Context, row *OrderItemRow) error {
	t.state.orderItems[orderItemKey{row.ShopID, row.OrderSN, row.ItemID, row.ModelID}] = *row
	return nil
}

func (t *memoryTx) FindProduct(_ context.Context, shopID int64, itemID int64) (*ProductRow, error) {
	row, ok := t.state.products[shopKey{shopID, itemID}]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (t *memoryTx) InsertProduct(_ context.Context, row *ProductRow) error {
	key := shopKey{row.ShopID, row.ItemID}
	if _, exists := t.state.products[key]; exists {
		return ErrConflict
	}
	t.state.products[key] = *row
	return nil
}

func (t *memoryTx) UpdateProduct(_ context.Context, row *ProductRow) error {
	t.state.products[shopKey{row.ShopID, row.ItemID}] = *row
	return nil
}

func (t *memoryTx) FindVariation(_ context.Context, shopID int64, modelID int64) (*VariationRow, error) {
	row, ok := t.state.variations[shopKey{shopID, modelID}]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (t *memoryTx) InsertVariation(_ context.Context, row *VariationRow) error {
	key := shopKey{row.ShopID, row.ModelID}
	if _, exists := t.state.variations[key]; exists {
		return ErrConflict
	}
	t.state.variations[key] = *row
	return nil
}

func (t *memoryTx) UpdateVariation(_ context.Context, row *VariationRow) error {
	t.state.variations[shopKey{row.ShopID, row.ModelID}] = *row
	return nil
}

func (t *memoryTx) AppendInventoryLog(_ context.Context, row *InventoryLogRow) error {
	t.state.inventory = append(t.state.inventory, *row)
	return nil
}

func (t *memoryTx) FindReturn(_ context.Context, shopID int64, returnSN string) (*ReturnRow, error) {
	row, ok := t.state.returns[shopStringKey{shopID, returnSN}]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (t *memoryTx) InsertReturn(_ context.Context, row *ReturnRow) error {
	key := shopStringKey{row.ShopID, row.ReturnSN}
	if _, exists := t.state.returns[key]; exists {
		return ErrConflict
	}
	t.state.returns[key] = *row
	return nil
}

func (t *memoryTx) UpdateReturn(_ context.Context, row *ReturnRow) error {
	t.state.returns[shopStringKey{row.ShopID, row.ReturnSN}] = *row
	return nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Tx    = (*memoryTx)(nil)
)
