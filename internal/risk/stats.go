package risk

import "math"

// 相关性与 VaR 的基础统计，输入都是收益率序列（最新在末尾）。

// pearson 皮尔逊相关系数；取两序列等长的尾部对齐，样本不足返回 0。
func pearson(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 3 {
		return 0
	}
	a = a[len(a)-n:]
	b = b[len(b)-n:]
	var sumA, sumB float64
	for i := 0; i < n; i++ {
		sumA += a[i]
		sumB += b[i]
	}
	meanA := sumA / float64(n)
	meanB := sumB / float64(n)
	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da := a[i] - meanA
		db := b[i] - meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}

// stddev 样本标准差。
func stddev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(n)
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// normalQuantile 常用置信度的标准正态分位数，中间值线性插值。
func normalQuantile(confidence float64) float64 {
	type kv struct{ c, z float64 }
	table := []kv{
		{0.80, 0.8416}, {0.85, 1.0364}, {0.90, 1.2816},
		{0.95, 1.6449}, {0.975, 1.9600}, {0.99, 2.3263}, {0.995, 2.5758},
	}
	if confidence <= table[0].c {
		return table[0].z
	}
	for i := 1; i < len(table); i++ {
		if confidence <= table[i].c {
			lo, hi := table[i-1], table[i]
			t := (confidence - lo.c) / (hi.c - lo.c)
			return lo.z + t*(hi.z-lo.z)
		}
	}
	return table[len(table)-1].z
}

// weightedPosition 参与 VaR 估计的一笔敞口。
type weightedPosition struct {
	weight  float64 // 名义价值占权益比例
	returns []float64
}

// portfolioVaRPct 方差-协方差法估计组合 VaR，返回占权益的百分比。
// σ_p² = ΣΣ w_i w_j σ_i σ_j ρ_ij，VaR = z · σ_p。
func portfolioVaRPct(positions []weightedPosition, confidence float64) float64 {
	usable := positions[:0:0]
	for _, p := range positions {
		if p.weight > 0 && len(p.returns) >= 3 {
			usable = append(usable, p)
		}
	}
	if len(usable) == 0 {
		return 0
	}
	var variance float64
	for i := range usable {
		si := stddev(usable[i].returns)
		for j := range usable {
			sj := stddev(usable[j].returns)
			rho := 1.0
			if i != j {
				rho = pearson(usable[i].returns, usable[j].returns)
			}
			variance += usable[i].weight * usable[j].weight * si * sj * rho
		}
	}
	if variance <= 0 {
		return 0
	}
	return normalQuantile(confidence) * math.Sqrt(variance) * 100
}
