package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"
	"time"

	kit "sharebot/internal/transport"
	logx "sharebot/pkg/logx"
)

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

func newHTTPClient() *http.Client { return &http.Client{Timeout: 8 * time.Second} }

// UpdateMenuCommands publishes the command menu (setMyCommands).
// It only calls the API when the list changed since the last success.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	payload := menuPayload(cmds)
	sum := menuHash(payload.Commands)
	if sum == a.menuHash {
		return nil
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	url := strings.TrimRight(a.cfg.apiURL(), "/") + "/bot" + strings.TrimSpace(a.cfg.Token) + "/setMyCommands"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out struct {
		OK          bool   `json:"ok"`
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&out)

	if resp.StatusCode/100 != 2 || !out.OK {
		if out.Description != "" {
			return fmt.Errorf("telegram setMyCommands failed: %s (code=%d http=%d)", out.Description, out.ErrorCode, resp.StatusCode)
		}
		return fmt.Errorf("telegram setMyCommands failed: http=%d", resp.StatusCode)
	}

	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(payload.Commands)))
	return nil
}

type menuCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

type setCommandsPayload struct {
	Commands []menuCommand `json:"commands"`
}

// menuPayload drops empty commands and applies the Bot API limits
// (100 commands, 256-char descriptions).
func menuPayload(cmds []kit.BotCommand) setCommandsPayload {
	p := setCommandsPayload{Commands: make([]menuCommand, 0, len(cmds))}
	for _, c := range cmds {
		name := strings.TrimPrefix(strings.TrimSpace(c.Command), "/")
		if name == "" {
			continue
		}
		d := c.Description
		if d == "" {
			d = name
		}
		if r := []rune(d); len(r) > 256 {
			d = string(r[:256])
		}
		p.Commands = append(p.Commands, menuCommand{Command: name, Description: d})
		if len(p.Commands) >= 100 {
			break
		}
	}
	return p
}

func menuHash(cmds []menuCommand) uint64 {
	h := fnv.New64a()
	for _, c := range cmds {
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
	}
	return h.Sum64()
}
