package locator

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/okian/ridesafe/internal/domain/model"
)

// DefaultGPSDAddr is gpsd's standard listen address.
const DefaultGPSDAddr = "127.0.0.1:2947"

const (
	gpsdWatchCmd   = "?WATCH={\"enable\":true,\"json\":true}\n"
	gpsdMinFixMode = 2 // 2D fix
)

// GPSD asks a gpsd daemon for a single position report per call.
type GPSD struct {
	addr string
}

// NewGPSD creates a gpsd locator. An empty addr uses DefaultGPSDAddr.
func NewGPSD(addr string) *GPSD {
	if strings.TrimSpace(addr) == "" {
		addr = DefaultGPSDAddr
	}
	return &GPSD{addr: addr}
}

type gpsdTPV struct {
	Class string   `json:"class"`
	Mode  *int     `json:"mode"`
	Lat   *float64 `json:"lat"`
	Lon   *float64 `json:"lon"`
}

// Locate connects, enables watch mode and returns the first TPV report
// carrying at least a 2D fix. It honours ctx for both dial and read.
func (g *GPSD) Locate(ctx context.Context) (model.Position, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", g.addr)
	if err != nil {
		return model.Position{}, fmt.Errorf("gpsd dial %s: %w", g.addr, err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if _, err := conn.Write([]byte(gpsdWatchCmd)); err != nil {
		return model.Position{}, fmt.Errorf("gpsd watch: %w", err)
	}

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		pos, ok := parseTPV(sc.Bytes())
		if ok {
			return pos, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return model.Position{}, err
	}
	if err := sc.Err(); err != nil {
		return model.Position{}, fmt.Errorf("gpsd read: %w", err)
	}
	return model.Position{}, ErrNoFix
}

// parseTPV extracts a position from one gpsd JSON line.
// Non-TPV classes and TPV reports without a fix are ignored.
func parseTPV(line []byte) (model.Position, bool) {
	var tpv gpsdTPV
	if err := json.Unmarshal(line, &tpv); err != nil {
		return model.Position{}, false
	}
	if !strings.EqualFold(tpv.Class, "TPV") {
		return model.Position{}, false
	}
	if tpv.Mode == nil || *tpv.Mode < gpsdMinFixMode || tpv.Lat == nil || tpv.Lon == nil {
		return model.Position{}, false
	}
	return model.Position{Lat: *tpv.Lat, Lon: *tpv.Lon}, true
}
