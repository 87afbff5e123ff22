package model

import "encoding/json"

// FeatureSet is the indicator payload stored in market_data_cache
// features_json. Field names are part of the cache contract.
type FeatureSet struct {
	Adx       float64  `json:"adx"`
	DiPlus    float64  `json:"di_plus"`
	DiMinus   float64  `json:"di_minus"`
	Ema21     float64  `json:"ema_21"`
	Ema55     float64  `json:"ema_55"`
	Atr20     float64  `json:"atr_20"`
	SqueezeOn bool     `json:"squeeze_on"`
	Momentum  float64  `json:"momentum"`
	VolRatio  float64  `json:"vol_ratio"`
	Rsi       float64  `json:"rsi"`
	RsiSlope  float64  `json:"rsi_slope"`
	BtcCorr   *float64 `json:"btc_corr,omitempty"`
}

// Vector flattens the feature set for the AI scorer. Order is stable and
// shared between Score and PartialFit.
func (f FeatureSet) Vector() []float64 {
	squeeze := 0.0
	if f.SqueezeOn {
		squeeze = 1.0
	}
	corr := 0.0
	if f.BtcCorr != nil {
		corr = *f.BtcCorr
	}
	return []float64{
		f.Adx, f.DiPlus, f.DiMinus, f.Ema21, f.Ema55,
		squeeze, f.Momentum, f.VolRatio, f.Rsi, f.RsiSlope, corr,
	}
}

// FeatureVectorDim is len(FeatureSet.Vector()).
const FeatureVectorDim = 11

// ParseFeatureSet decodes a features_json column value.
func ParseFeatureSet(raw string) (FeatureSet, error) {
	var f FeatureSet
	err := json.Unmarshal([]byte(raw), &f)
	return f, err
}

// Encode serializes the feature set for storage.
func (f FeatureSet) Encode() (string, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
