package seed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	modulesvc "sdui/internal/gateway/service/module"
)

// betslip keeps selections per user in memory. It stands in for the real
// betting backend in demos and tests.
type betslip struct {
	mu         sync.Mutex
	selections map[string][]string
}

func (b *betslip) add(_ context.Context, config, payload map[string]any) (map[string]any, error) {
	user, _ := payload["userId"].(string)
	sel, _ := payload["selectionId"].(string)
	if sel == "" {
		return nil, errors.New("selectionId is required")
	}
	limit := 20
	if v, ok := config["maxSelections"].(float64); ok && v > 0 {
		limit = int(v)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.selections[user]
	for _, s := range cur {
		if s == sel {
			return map[string]any{"selections": append([]string(nil), cur...)}, nil
		}
	}
	if len(cur) >= limit {
		return nil, fmt.Errorf("bet slip is full (%d selections)", limit)
	}
	cur = append(cur, sel)
	b.selections[user] = cur
	return map[string]any{"selections": append([]string(nil), cur...)}, nil
}

func (b *betslip) remove(_ context.Context, _, payload map[string]any) (map[string]any, error) {
	user, _ := payload["userId"].(string)
	sel, _ := payload["selectionId"].(string)
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.selections[user]
	out := cur[:0]
	for _, s := range cur {
		if s != sel {
			out = append(out, s)
		}
	}
	b.selections[user] = out
	return map[string]any{"selections": append([]string(nil), out...)}, nil
}

func launchGame(_ context.Context, config, payload map[string]any) (map[string]any, error) {
	game, _ := payload["gameId"].(string)
	if game == "" {
		return nil, errors.New("gameId is required")
	}
	lobby, _ := config["lobbyUrl"].(string)
	return map[string]any{
		"gameId":    game,
		"sessionId": uuid.NewString(),
		"launchUrl": lobby + "/" + game,
	}, nil
}

func claimPromotion(_ context.Context, _, payload map[string]any) (map[string]any, error) {
	promo, _ := payload["promotionId"].(string)
	if promo == "" {
		return nil, errors.New("promotionId is required")
	}
	return map[string]any{"promotionId": promo, "claimed": true}, nil
}

// RegisterHandlers binds the demo action handlers to the seeded modules.
// Modules missing from the service are skipped.
func RegisterHandlers(modules *modulesvc.Service) {
	slip := &betslip{selections: make(map[string][]string)}
	bind := []struct {
		module, action string
		h              modulesvc.ActionHandler
	}{
		{"betslip", "add_selection", slip.add},
		{"betslip", "remove_selection", slip.remove},
		{"casino", "launch_game", launchGame},
		{"promotions", "claim", claimPromotion},
	}
	for _, b := range bind {
		if err := modules.Handle(b.module, b.action, b.h); err != nil {
			log.Printf("seed: skip handler %s/%s: %v", b.module, b.action, err)
		}
	}
}
