package analyst

// Value is an indicator result that distinguishes "insufficient data" from
// zero. Callers must check OK instead of treating a missing value as neutral.
type Value struct {
	V  float64
	OK bool
}

func defined(v float64) Value { return Value{V: v, OK: true} }

var undefined = Value{}

// SMA returns the simple moving average of the trailing period, or an
// undefined Value when the series is shorter than the period.
func SMA(series []float64, period int) Value {
	if period <= 0 || len(series) < period {
		return undefined
	}
	var sum float64
	for _, v := range series[len(series)-period:] {
		sum += v
	}
	return defined(sum / float64(period))
}

// EMA returns the exponential moving average over the series, seeded with the
// SMA of the first period. Undefined when the series is shorter than period.
func EMA(series []float64, period int) Value {
	s := emaSeries(series, period)
	if len(s) == 0 {
		return undefined
	}
	return defined(s[len(s)-1])
}

// emaSeries returns the EMA value for every index >= period-1, or nil when
// the series is too short. Result index i corresponds to series index
// i+period-1.
func emaSeries(series []float64, period int) []float64 {
	if period <= 0 || len(series) < period {
		return nil
	}
	k := 2.0 / (float64(period) + 1)

	var seed float64
	for _, v := range series[:period] {
		seed += v
	}
	seed /= float64(period)

	out := make([]float64, 0, len(series)-period+1)
	out = append(out, seed)
	ema := seed
	for _, v := range series[period:] {
		ema = (v-ema)*k + ema
		out = append(out, ema)
	}
	return out
}

// RSI averages gains and losses over the trailing window. With fewer than
// period+1 samples it returns the neutral 50; when the average loss is zero
// it saturates at 100 instead of dividing by zero.
func RSI(series []float64, period int) float64 {
	if period <= 0 || len(series) < period+1 {
		return 50
	}

	window := series[len(series)-period-1:]
	var gains, losses float64
	for i := 1; i < len(window); i++ {
		delta := window[i] - window[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD returns the (macd, signal, histogram) triple: EMA12−EMA26 with an
// EMA9 signal line over the MACD series. All three are zero when the series
// is shorter than 26; it never fails.
func MACD(series []float64) (macd, signal, histogram float64) {
	const (
		fast   = 12
		slow   = 26
		smooth = 9
	)
	if len(series) < slow {
		return 0, 0, 0
	}

	fastS := emaSeries(series, fast)
	slowS := emaSeries(series, slow)

	// Align the two EMA series on the slow start.
	offset := len(fastS) - len(slowS)
	macdSeries := make([]float64, len(slowS))
	for i := range slowS {
		macdSeries[i] = fastS[i+offset] - slowS[i]
	}
	macd = macdSeries[len(macdSeries)-1]

	if len(macdSeries) < smooth {
		// Not enough MACD points for a full signal EMA yet; fall back to the
		// plain average so the histogram stays meaningful.
		var sum float64
		for _, v := range macdSeries {
			sum += v
		}
		signal = sum / float64(len(macdSeries))
	} else {
		sig := emaSeries(macdSeries, smooth)
		signal = sig[len(sig)-1]
	}

	return macd, signal, macd - signal
}

// SupportResistance scans the trailing window (default 50 points) for local
// extrema: a point lower/higher than both neighbors. Support is the highest
// local minimum strictly below price, resistance the lowest local maximum
// strictly above it. Empty sets fall back to sentinel bounds (0, price*1.1)
// so consumers never see "no resistance".
func SupportResistance(series []float64, price float64, window int) (support, resistance float64) {
	support = 0
	resistance = price * 1.1

	if window <= 0 {
		window = 50
	}
	if len(series) > window {
		series = series[len(series)-window:]
	}

	for i := 1; i < len(series)-1; i++ {
		v := series[i]
		if v < series[i-1] && v < series[i+1] { // local minimum
			if v < price && v > support {
				support = v
			}
		}
		if v > series[i-1] && v > series[i+1] { // local maximum
			if v > price && v < resistance {
				resistance = v
			}
		}
	}
	return support, resistance
}
