package clore

import "encoding/json"

// Wallet is one currency balance from the wallets endpoint
type Wallet struct {
	Name    string  `json:"name"`
	Balance float64 `json:"balance"`
	Deposit string  `json:"deposit"`
}

type walletsResponse struct {
	Code    int      `json:"code"`
	Wallets []Wallet `json:"wallets"`
}

// ServerRating aggregates marketplace reviews
type ServerRating struct {
	Avg float64 `json:"avg"`
	Cnt int     `json:"cnt"`
}

// ServerNet describes network location and throughput
type ServerNet struct {
	Up   float64 `json:"up"`
	Down float64 `json:"down"`
	CC   string  `json:"cc"`
}

// ServerSpecs is the hardware descriptor attached to every listing
type ServerSpecs struct {
	GPU       string    `json:"gpu"`
	GPURAM    float64   `json:"gpuram"`
	CPU       string    `json:"cpu"`
	CPUs      string    `json:"cpus"`
	RAM       float64   `json:"ram"`
	Disk      string    `json:"disk"`
	DiskSpeed float64   `json:"disk_speed"`
	Net       ServerNet `json:"net"`
	PCIeRev   int       `json:"pcie_rev"`
	PCIeWidth int       `json:"pcie_width"`
	StockPL   []float64 `json:"stock_pl"`
}

// ServerPrice carries prices keyed by currency for each market type
type ServerPrice struct {
	OnDemand map[string]float64 `json:"on_demand"`
	Spot     map[string]float64 `json:"spot"`
	USD      map[string]float64 `json:"usd"`
}

// Server is one marketplace listing or owned machine
type Server struct {
	ID          int          `json:"id"`
	Owner       int          `json:"owner"`
	MRL         int64        `json:"mrl"` // max rental length, seconds
	Price       ServerPrice  `json:"price"`
	Rented      bool         `json:"rented"`
	Online      bool         `json:"online"`
	Connected   bool         `json:"connected"`
	Specs       ServerSpecs  `json:"specs"`
	Rating      ServerRating `json:"rating"`
	Reliability float64      `json:"reliability"`
	CudaVersion string       `json:"cuda_version"`
}

type marketplaceResponse struct {
	Code    int      `json:"code"`
	Servers []Server `json:"servers"`
}

type myServersResponse struct {
	Code    int      `json:"code"`
	Servers []Server `json:"servers"`
}

// Order is one rental as reported by the my_orders endpoint
type Order struct {
	ID          int               `json:"id"`
	ServerID    int               `json:"si"`
	Price       float64           `json:"price"`
	Currency    string            `json:"currency"`
	Spend       float64           `json:"spend"`
	CreationFee float64           `json:"creation_fee"`
	MRL         int64             `json:"mrl"` // seconds until forced expiry, from creation
	CT          int64             `json:"ct"`  // creation unix timestamp
	Spot        bool              `json:"spot"`
	Image       string            `json:"image"`
	TCPPorts    map[string]string `json:"tcp_ports"`
	HTTPPort    string            `json:"http_port"`
	PubCluster  []string          `json:"pub_cluster"`
	Specs       json.RawMessage   `json:"specs"`
}

type myOrdersResponse struct {
	Code   int     `json:"code"`
	Orders []Order `json:"orders"`
}

// SpotOffer is one bid on the spot marketplace for a server
type SpotOffer struct {
	Price    float64 `json:"price"`
	Expected bool    `json:"expected"`
}

type spotMarketplaceResponse struct {
	Code   int         `json:"code"`
	Offers []SpotOffer `json:"offers"`
}

type pohBalanceResponse struct {
	Code    int     `json:"code"`
	Balance float64 `json:"balance"`
}

// CreateOrderRequest carries the parameters of the order-creation endpoint.
// Credential fields are bounded upstream: password/token 32 chars, key 3072.
type CreateOrderRequest struct {
	Currency          string            `json:"currency"`
	Image             string            `json:"image"`
	RentingServer     int               `json:"renting_server"`
	Type              string            `json:"type"` // on-demand, spot
	SpotPrice         *float64          `json:"spotprice,omitempty"`
	Ports             map[string]string `json:"ports,omitempty"`
	Env               map[string]string `json:"env,omitempty"`
	JupyterToken      string            `json:"jupyter_token,omitempty"`
	SSHPassword       string            `json:"ssh_password,omitempty"`
	SSHKey            string            `json:"ssh_key,omitempty"`
	Command           string            `json:"command,omitempty"`
	RequiredPrice     *float64          `json:"required_price,omitempty"`
	AutosshEntrypoint bool              `json:"autossh_entrypoint,omitempty"`
}

type statusResponse struct {
	Code  int    `json:"code"`
	Error string `json:"error"`
}

// Order types accepted by the marketplace
const (
	OrderTypeOnDemand = "on-demand"
	OrderTypeSpot     = "spot"

	CurrencyClore   = "CLORE-Blockchain"
	CurrencyBitcoin = "bitcoin"
)
