package models

// Demand viability tags produced by the spatial demand matcher.
const (
	DemandHigh   = "High"
	DemandMedium = "Medium"
	DemandLow    = "Low"
	DemandNone   = "None"
)

type SaleEvidence struct {
	SaleDate   string  `json:"sale_date"`
	Platform   string  `json:"platform"`
	DistanceKm float64 `json:"distance_km"`
	Weather    string  `json:"weather"`
	Quantity   float64 `json:"qty"`
}

// MatchResult is the K-nearest-sales evidence for one returned item.
type MatchResult struct {
	ID                int            `json:"id"`
	ProductName       string         `json:"product_name"`
	Category          string         `json:"category"`
	City              string         `json:"city"`
	Location          Coordinate     `json:"location"`
	Weather           string         `json:"weather"`
	LocalSimilarSales int            `json:"local_similar_sales"`
	AvgDistanceKm     float64        `json:"avg_distance_km"`
	ResaleViability   string         `json:"resale_viability"`
	Evidence          []SaleEvidence `json:"evidence"`
}

type DemandReport struct {
	RecentReturns []ReturnRecord `json:"recent_returns"`
	Matches       []MatchResult  `json:"demand_matching_results"`
}

type Decision string

const (
	DecisionYes   Decision = "YES"
	DecisionMaybe Decision = "MAYBE"
	DecisionNo    Decision = "NO"
)

// ViabilityDecision is the geospatial resale verdict for one return.
type ViabilityDecision struct {
	OrderID       string     `json:"order_id"`
	Product       string     `json:"product"`
	City          string     `json:"city"`
	Location      Coordinate `json:"location"`
	Decision      Decision   `json:"sell_near_me"`
	Confidence    int        `json:"sell_confidence"`
	Reason        string     `json:"reason"`
	BestPlatform  string     `json:"best_platform"`
	NearbySales   int        `json:"nearby_sales"`
	TotalQuantity float64    `json:"total_qty"`
	AvgDistanceKm float64    `json:"avg_distance_km"`
}

// RegionalTally counts resellable (YES/MAYBE) and non-resellable returns per city.
type RegionalTally struct {
	City    string `json:"city"`
	Returns int    `json:"returns"`
	Sales   int    `json:"sales"`
}

type MapPoint struct {
	Lat        float64  `json:"lat"`
	Lon        float64  `json:"lon"`
	Decision   Decision `json:"decision"`
	Confidence int      `json:"confidence"`
	Product    string   `json:"product"`
	City       string   `json:"city"`
	Platform   string   `json:"platform"`
}

type ViabilityReport struct {
	Decisions       []ViabilityDecision `json:"analysis_results"`
	RegionalSummary []RegionalTally     `json:"regional_summary"`
	MapPoints       []MapPoint          `json:"map_data"`
	Counts          map[Decision]int    `json:"counts"`
}

// ProductQuery is a manual viability check request.
type ProductQuery struct {
	ProductName string  `json:"product_name" validate:"required,max=200"`
	Category    string  `json:"category" validate:"required,max=100"`
	Price       float64 `json:"original_price" validate:"gt=0"`
	Weather     string  `json:"weather" validate:"required,max=50"`
	City        string  `json:"city" validate:"required,max=100"`
}

// Weather impact labels on a ProductAssessment.
const (
	WeatherSignificant    = "Significant"
	WeatherNotSignificant = "Not Significant"
	WeatherNeutral        = "Neutral"
)

type ProductAssessment struct {
	ProductName          string     `json:"product_name"`
	SellProbability      float64    `json:"sell_probability"`
	BaseProbability      float64    `json:"base_probability"`
	EstimatedProfit      string     `json:"est_profit"`
	RecommendedApp       string     `json:"recommended_app"`
	WeatherImpact        string     `json:"weather_impact"`
	PredictedMarketPrice string     `json:"predicted_market_price"`
	PriceAcceptable      bool       `json:"price_acceptable"`
	Fallbacks            []Fallback `json:"fallbacks,omitempty"`
}

// TrainingSummary describes the fitted model set.
type TrainingSummary struct {
	Rows              int                 `json:"rows"`
	TrainRows         int                 `json:"train_rows"`
	HoldoutRows       int                 `json:"holdout_rows"`
	HoldoutAccuracy   float64             `json:"holdout_accuracy"`
	PositiveRows      int                 `json:"positive_rows"`
	NegativeRows      int                 `json:"negative_rows"`
	SingleClassTarget bool                `json:"single_class_target"`
	Classes           map[string][]string `json:"classes"`
	Fallbacks         []Fallback          `json:"fallbacks,omitempty"`
}

type DiscountPoint struct {
	DiscountPct      int     `json:"discount_pct"`
	DemandImpactPct  float64 `json:"demand_impact_pct"`
	RevenueImpactPct float64 `json:"revenue_impact_pct"`
	ProfitImpactPct  float64 `json:"profit_impact_pct"`
}

type ProfitAnalysis struct {
	BaseDemandUnits     int     `json:"base_demand_units"`
	ExpectedDemandUnits int     `json:"expected_demand_units"`
	ProfitChangePct     float64 `json:"profit_change_pct"`
	BreakEvenDiscount   string  `json:"break_even_discount"`
}

// Elasticity methods.
const (
	MethodGradientBoosting = "gradient_boosting"
	MethodClosedForm       = "closed_form"
)

type PriceSensitivityReport struct {
	Method          string          `json:"method"`
	PriceColumn     string          `json:"price_column"`
	Rows            int             `json:"rows"`
	BasePrice       float64         `json:"base_price"`
	BaseDemand      float64         `json:"base_demand"`
	LinearSlope     *float64        `json:"linear_slope,omitempty"`
	CurrentDiscount DiscountPoint   `json:"discount_simulator"`
	Simulation      []DiscountPoint `json:"simulation_data"`
	ProfitAnalysis  ProfitAnalysis  `json:"profit_impact_analysis"`
	OptimalDiscount int             `json:"optimal_discount"`
	KeyInsight      string          `json:"key_insight"`
	Fallbacks       []Fallback      `json:"fallbacks,omitempty"`
}

// Lifecycle stages.
const (
	StageNew       = "New"
	StageMature    = "Mature"
	StageDeclining = "Declining"

	TrendGrowing   = "Growing"
	TrendStable    = "Stable"
	TrendDeclining = "Declining"
)

type ProductLifecycle struct {
	ProductName string  `json:"product_name"`
	Trend       string  `json:"demand_trend"`
	Stage       string  `json:"lifecycle_stage"`
	Action      string  `json:"action_recommendation"`
	Slope       float64 `json:"slope"`
	Months      int     `json:"months"`
}

type LifecycleKPIs struct {
	TotalProducts     int `json:"total_products"`
	NewProducts       int `json:"new_products"`
	MatureProducts    int `json:"mature_products"`
	DecliningProducts int `json:"declining_products"`
}

type MonthlyDemand struct {
	Month      string             `json:"month"`
	Quantities map[string]float64 `json:"quantities"`
}

type ProcurementStrategy struct {
	IncreaseInventory []string `json:"increase_inventory"`
	MaintainStock     []string `json:"maintain_stock"`
	ReduceProcurement []string `json:"reduce_procurement"`
}

type LifecycleReport struct {
	KPIs            LifecycleKPIs       `json:"kpi_metrics"`
	Products        []ProductLifecycle  `json:"lifecycle_table"`
	TrendChart      []MonthlyDemand     `json:"trend_chart_data"`
	CriticalInsight string              `json:"critical_insight"`
	Procurement     ProcurementStrategy `json:"procurement_strategy"`
	Fallbacks       []Fallback          `json:"fallbacks,omitempty"`
}

// Segmentation zone labels.
const (
	ZoneHighDemandLowReturn  = "High Demand / Low Return"
	ZoneHighDemandHighReturn = "High Demand / High Return"
	ZoneLowDemandHighReturn  = "Low Demand / High Return"
	ZoneStable               = "Stable Zone"
)

// Risk levels by return percentage band.
const (
	RiskCritical = "Critical"
	RiskHigh     = "High"
	RiskMedium   = "Medium"
	RiskLow      = "Low"
)

// CityMetrics is the per-city aggregate used by the segmentation engine.
type CityMetrics struct {
	City         string      `json:"city"`
	TotalSales   float64     `json:"total_sales"`
	TotalReturns int         `json:"total_returns"`
	ReturnPct    float64     `json:"return_pct"`
	Location     *Coordinate `json:"location,omitempty"`
	Cluster      int         `json:"cluster"`
	ZoneType     string      `json:"zone_type"`
	ZoneColor    string      `json:"zone_color"`
	RiskLevel    string      `json:"risk_level"`
	DemandLevel  string      `json:"demand_level"`
}

type SegmentationKPIs struct {
	TotalCities            int `json:"total_cities"`
	HighDemandClusters     int `json:"high_demand_clusters"`
	HighReturnZones        int `json:"high_return_zones"`
	ExpansionOpportunities int `json:"expansion_opportunities"`
}

type RiskRow struct {
	City      string `json:"city"`
	RiskLevel string `json:"risk_level"`
	ReturnPct string `json:"return_pct"`
	Demand    string `json:"demand"`
}

type SegmentationReport struct {
	KPIs          SegmentationKPIs  `json:"kpi_metrics"`
	Cities        []CityMetrics     `json:"city_metrics"`
	HighRiskZones []RiskRow         `json:"high_risk_zones"`
	ZoneColors    map[string]string `json:"zone_colors"`
	SalesAverage  float64           `json:"sales_average"`
	ReturnAverage float64           `json:"return_average"`
	Clusters      int               `json:"clusters"`
	Fallbacks     []Fallback        `json:"fallbacks,omitempty"`
}

type ChannelHeader struct {
	TotalReturns     int     `json:"total_returns"`
	TotalRevenue     float64 `json:"total_revenue"`
	TopChannel       string  `json:"top_channel"`
	AvgCommissionPct float64 `json:"avg_commission_percent"`
	ReturnRatePct    float64 `json:"return_rate_percent"`
}

type ChannelRevenue struct {
	Month    string  `json:"month"`
	Platform string  `json:"platform"`
	Revenue  float64 `json:"revenue"`
}

type MarketShare struct {
	Platform string  `json:"platform"`
	SharePct float64 `json:"market_share"`
}

type PlatformMetrics struct {
	Platform         string  `json:"platform"`
	DeliverySpeedMin float64 `json:"delivery_speed"`
	ConversionPct    float64 `json:"conversion"`
	ReturnRatePct    float64 `json:"rtn_rate"`
	Rating           float64 `json:"rating"`
}

type ChannelReport struct {
	Header             ChannelHeader     `json:"header_metrics"`
	RevenueTrend       []ChannelRevenue  `json:"revenue_trend"`
	MarketShare        []MarketShare     `json:"market_share"`
	Platforms          []PlatformMetrics `json:"platform_metrics"`
	SynthesizedColumns []string          `json:"synthesized_columns,omitempty"`
}
