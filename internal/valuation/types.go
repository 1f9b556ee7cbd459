package valuation

// Record is the flat form record collected by the wizard. JSON names are
// shared with share links and the webhook payload.
type Record struct {
	ARR                 float64 `json:"arr" yaml:"arr"`
	NetRevenueRetention string  `json:"netRevenueRetention" yaml:"netRevenueRetention"`
	RevenueChurn        string  `json:"revenueChurn" yaml:"revenueChurn"`
	QoQGrowthRate       float64 `json:"qoqGrowthRate" yaml:"qoqGrowthRate"`
	CAC                 float64 `json:"cac" yaml:"cac"`
	CACContext          string  `json:"cacContext" yaml:"cacContext"`
	Profitability       string  `json:"profitability" yaml:"profitability"`
	MarketGravity       string  `json:"marketGravity" yaml:"marketGravity"`
	BusinessModel       string  `json:"businessModel" yaml:"businessModel"`

	FirstName   string `json:"firstName" yaml:"firstName"`
	LastName    string `json:"lastName" yaml:"lastName"`
	Email       string `json:"email" yaml:"email"`
	Phone       string `json:"phone" yaml:"phone"`
	CompanyName string `json:"companyName" yaml:"companyName"`
	Website     string `json:"website" yaml:"website"`
}

// Business models.
const (
	BusinessModelB2B = "b2b"
	BusinessModelB2C = "b2c"
)

// Net revenue retention bands. Collected for the lead, not scored.
const (
	RetentionOver120   = "over_120"
	Retention100To120  = "100_to_120"
	Retention90To100   = "90_to_100"
	RetentionUnder90   = "under_90"
	RetentionDontTrack = "dont_track"
)

// Monthly revenue churn bands.
const (
	ChurnUnder2    = "under_2"
	Churn2To5      = "2_to_5"
	Churn5To10     = "5_to_10"
	Churn10To15    = "10_to_15"
	ChurnOver15    = "over_15"
	ChurnDontTrack = "dont_track"
)

// Profitability bands.
const (
	ProfitableOver20 = "profitable_20_plus"
	Profitable0To20  = "profitable_0_20"
	Breakeven        = "breakeven"
	BurningModerate  = "burning_moderate"
	BurningHeavy     = "burning_heavy"
)

// Market gravity (brand pull / network effect) bands.
const (
	GravityMassiveMagnet = "massive_magnet"
	GravityStrongPull    = "strong_pull"
	GravityModeratePull  = "moderate_pull"
	GravityWeakPull      = "weak_pull"
	GravityNoPull        = "no_pull"
)

// CAC unit contexts. CACContextUnknown disables the efficiency multiplier.
const (
	CACContextPerCustomer = "per_customer"
	CACContextBlended     = "blended"
	CACContextUnknown     = "no_clue"
)

// Dimension names the tunable multipliers.
type Dimension string

const (
	DimensionGrowth        Dimension = "growth"
	DimensionChurn         Dimension = "churn"
	DimensionProfitability Dimension = "profitability"
	DimensionMarketGravity Dimension = "marketGravity"
	DimensionCAC           Dimension = "cacEfficiency"
)

// Dimensions lists the tunable dimensions in their canonical order.
var Dimensions = []Dimension{
	DimensionGrowth,
	DimensionChurn,
	DimensionProfitability,
	DimensionMarketGravity,
	DimensionCAC,
}

// Multipliers holds the per-dimension factors applied to ARR × base.
type Multipliers struct {
	Growth        float64 `json:"growth"`
	Churn         float64 `json:"churn"`
	Profitability float64 `json:"profitability"`
	MarketGravity float64 `json:"marketGravity"`
	CACEfficiency float64 `json:"cacEfficiency"`
	BusinessModel float64 `json:"businessModel"`
}

// Get returns the multiplier for a tunable dimension.
func (m Multipliers) Get(d Dimension) float64 {
	switch d {
	case DimensionGrowth:
		return m.Growth
	case DimensionChurn:
		return m.Churn
	case DimensionProfitability:
		return m.Profitability
	case DimensionMarketGravity:
		return m.MarketGravity
	case DimensionCAC:
		return m.CACEfficiency
	default:
		return 1.0
	}
}

func (m Multipliers) product() float64 {
	return m.Growth * m.Churn * m.Profitability * m.MarketGravity * m.CACEfficiency * m.BusinessModel
}

// Scores are 1-5 ratings derived from each multiplier.
type Scores struct {
	Growth        int `json:"growth"`
	Churn         int `json:"churn"`
	Profitability int `json:"profitability"`
	MarketGravity int `json:"marketGravity"`
	CACEfficiency int `json:"cacEfficiency"`
}

// Opportunity is the valuation gained by moving one dimension to best in class.
type Opportunity struct {
	Dimension Dimension `json:"dimension"`
	Current   float64   `json:"current"`
	Best      float64   `json:"best"`
	Impact    float64   `json:"impact"`
}

// Result is the output of Compute.
type Result struct {
	CurrentValuation   float64       `json:"currentValuation"`
	OptimizedValuation float64       `json:"optimizedValuation"`
	MedianValuation    float64       `json:"medianValuation"`
	VsMedian           float64       `json:"vsMedian"`
	VsOptimal          float64       `json:"vsOptimal"`
	Multipliers        Multipliers   `json:"multipliers"`
	Scores             Scores        `json:"scores"`
	Opportunities      []Opportunity `json:"opportunities"`
	BiggestOpportunity Opportunity   `json:"biggestOpportunity"`
}
