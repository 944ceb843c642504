package polymarket

// rtds.go: feed en vivo de trades (Real-Time Data Service).
//
// Se suscribe a activity/trades, filtra las wallets configuradas y entrega cada
// trade al handler en orden de llegada. Reconecta con backoff; si el feed cae,
// el poller de la Data API es el camino de recuperación.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polycopy/internal/domain"
	"github.com/alejandrodnm/polycopy/internal/metrics"
	"github.com/gorilla/websocket"
)

const (
	DefaultRTDSURL = "wss://ws-live-data.polymarket.com"

	rtdsPingInterval = 5 * time.Second
	rtdsReadTimeout  = 30 * time.Second
	rtdsWriteTimeout = 10 * time.Second
	// Una sesión que duró más que esto reinicia el backoff.
	rtdsHealthySession = time.Minute
)

// RTDSFeed implementa ports.LiveFeed sobre el websocket de Polymarket.
type RTDSFeed struct {
	url          string
	wallets      map[string]struct{}
	dialer       *websocket.Dialer
	backoff      Backoff
	pingInterval time.Duration
	readTimeout  time.Duration
}

// NewRTDSFeed crea el feed para las wallets dadas. url vacío usa producción.
func NewRTDSFeed(url string, wallets []string) *RTDSFeed {
	if url == "" {
		url = DefaultRTDSURL
	}
	set := make(map[string]struct{}, len(wallets))
	for _, w := range wallets {
		set[domain.NormalizeWallet(w)] = struct{}{}
	}
	return &RTDSFeed{
		url:          url,
		wallets:      set,
		dialer:       websocket.DefaultDialer,
		backoff:      Backoff{Base: 2 * time.Second, Max: time.Minute, Jitter: 0.2},
		pingInterval: rtdsPingInterval,
		readTimeout:  rtdsReadTimeout,
	}
}

// WithBackoff sustituye la política de reconexión.
func (f *RTDSFeed) WithBackoff(b Backoff) *RTDSFeed {
	f.backoff = b
	return f
}

// Run bloquea hasta que ctx se cancela, reconectando tras cada desconexión.
func (f *RTDSFeed) Run(ctx context.Context, handle func(context.Context, domain.LeaderTrade)) error {
	attempt := 0
	for {
		started := time.Now()
		err := f.session(ctx, handle)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(started) > rtdsHealthySession {
			attempt = 0
		}

		metrics.FeedReconnects.Inc()
		slog.Warn("rtds disconnected", "err", err, "attempt", attempt+1)
		if err := f.backoff.Sleep(ctx, attempt); err != nil {
			return err
		}
		attempt++
		slog.Info("rtds reconnecting...")
	}
}

// session mantiene una conexión hasta que falla la lectura o se cancela ctx.
func (f *RTDSFeed) session(ctx context.Context, handle func(context.Context, domain.LeaderTrade)) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.url, err)
	}
	defer conn.Close()

	// Cerrar la conexión desbloquea ReadMessage al cancelar.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var writeMu sync.Mutex
	write := func(data []byte) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(rtdsWriteTimeout))
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	sub, err := json.Marshal(rtdsSubscription{
		Action:        "subscribe",
		Subscriptions: []rtdsTopicSpec{{Topic: "activity", Type: "trades"}},
	})
	if err != nil {
		return err
	}
	if err := write(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	slog.Info("rtds connected", "url", f.url, "wallets", len(f.wallets))

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(f.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := write([]byte("PING")); err != nil {
					return
				}
			}
		}
	}()

	seen := 0
	for {
		conn.SetReadDeadline(time.Now().Add(f.readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		trade, ok := f.decode(msg)
		if !ok {
			continue
		}
		seen++
		if seen%20 == 0 {
			slog.Info("rtds trades seen", "count", seen, "last_wallet", trade.Wallet, "market", trade.MarketSlug)
		}
		handle(ctx, trade)
	}
}

var errNotTrade = errors.New("not a trade message")

// decode extrae un trade de una wallet seguida. ok=false para todo lo demás.
func (f *RTDSFeed) decode(msg []byte) (domain.LeaderTrade, bool) {
	trade, err := parseRTDSMessage(msg)
	if errors.Is(err, errNotTrade) {
		metrics.FeedMessages.WithLabelValues("ignored").Inc()
		return domain.LeaderTrade{}, false
	}
	if err != nil {
		metrics.FeedMessages.WithLabelValues("parse_error").Inc()
		slog.Debug("rtds message skipped", "err", err)
		return domain.LeaderTrade{}, false
	}
	if _, tracked := f.wallets[trade.Wallet]; !tracked {
		metrics.FeedMessages.WithLabelValues("ignored").Inc()
		return domain.LeaderTrade{}, false
	}
	metrics.FeedMessages.WithLabelValues("trade").Inc()
	return trade, true
}

// parseRTDSMessage acepta el sobre {topic,type,payload}, el formato antiguo
// {data} y un trade plano.
func parseRTDSMessage(msg []byte) (domain.LeaderTrade, error) {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return domain.LeaderTrade{}, errNotTrade // PONG y otros keep-alives
	}

	var env rtdsMessage
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return domain.LeaderTrade{}, fmt.Errorf("decode envelope: %w", err)
	}
	if (env.Topic != "" && env.Topic != "activity") || (env.Type != "" && env.Type != "trades") {
		return domain.LeaderTrade{}, errNotTrade
	}

	payload := env.Payload
	if len(payload) == 0 {
		payload = env.Data
	}
	if len(payload) == 0 {
		payload = trimmed
	}
	return mapRTDSTrade(payload)
}
