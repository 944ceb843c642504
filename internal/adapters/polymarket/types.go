package polymarket

import "encoding/json"

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain entities se hace en mapping.go.

// --- Data API ---

// rawDataTrade es un trade de GET /trades?user=. Los números llegan a veces
// como string y a veces como número, por eso json.Number.
type rawDataTrade struct {
	ProxyWallet     string        `json:"proxyWallet"`
	TransactionHash string        `json:"transactionHash"`
	ConditionID     string        `json:"conditionId"`
	Asset           string        `json:"asset"`
	Outcome         string        `json:"outcome"`
	Side            string        `json:"side"`
	Price           json.Number   `json:"price"`
	Size            json.Number   `json:"size"`
	Timestamp       json.Number   `json:"timestamp"`
	Slug            string        `json:"slug"`
	Title           string        `json:"title"`
	Market          *rawMarketRef `json:"market,omitempty"`
}

// rawMarketRef aparece anidado en algunos payloads (RTDS, versiones viejas de la API).
type rawMarketRef struct {
	Slug     string `json:"slug"`
	Question string `json:"question"`
}

// valueEntry es un item de GET /value?user=.
type valueEntry struct {
	User  string      `json:"user"`
	Value json.Number `json:"value"`
}

// rawPosition es una posición de GET /positions?user=.
type rawPosition struct {
	ProxyWallet  string      `json:"proxyWallet"`
	ConditionID  string      `json:"conditionId"`
	Outcome      string      `json:"outcome"`
	Size         json.Number `json:"size"`
	AvgPrice     json.Number `json:"avgPrice"`
	CurPrice     json.Number `json:"curPrice"`
	CurrentValue json.Number `json:"currentValue"`
	Title        string      `json:"title"`
	Slug         string      `json:"slug"`
	EventSlug    string      `json:"eventSlug"`
	Category     string      `json:"category"`
}

// --- Gamma API ---

// gammaMarketsResponse es la respuesta de GET /markets de Gamma.
type gammaMarketsResponse []gammaMarket

// gammaMarket contiene la metadata de un mercado.
type gammaMarket struct {
	ConditionID string `json:"conditionId"`
	Question    string `json:"question"`
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Category    string `json:"category"`
	EndDateISO  string `json:"endDateIso"`
	EndDate     string `json:"endDate"`
	Active      bool   `json:"active"`
	Closed      bool   `json:"closed"`
}

// --- RTDS ---

// rtdsSubscription es el mensaje de suscripción al stream de actividad.
type rtdsSubscription struct {
	Action        string          `json:"action"`
	Subscriptions []rtdsTopicSpec `json:"subscriptions"`
}

type rtdsTopicSpec struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
}

// rtdsMessage es el sobre de un mensaje RTDS. El trade viene en Payload (o en
// Data en versiones anteriores del feed).
type rtdsMessage struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Data    json.RawMessage `json:"data"`
}

// rtdsTrade tolera los alias de campos que ha usado el feed.
type rtdsTrade struct {
	rawDataTrade
	ConditionIDV2 string `json:"conditionIdV2"`
	AssetID       string `json:"assetId"`
	TokenID       string `json:"tokenId"`
	Question      string `json:"question"`
}
