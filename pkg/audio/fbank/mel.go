package fbank

import "math"

// Window selects the frame window function.
type Window string

const (
	Hamming Window = "hamming"
	Hann    Window = "hann"
	// Povey is Kaldi's default: a Hann window raised to the power 0.85.
	Povey Window = "povey"
)

func (w Window) coefficients(n int) ([]float64, error) {
	c := make([]float64, n)
	a := 2 * math.Pi / float64(n-1)
	for i := range c {
		hann := 0.5 - 0.5*math.Cos(a*float64(i))
		switch w {
		case Hamming, "":
			c[i] = 0.54 - 0.46*math.Cos(a*float64(i))
		case Hann:
			c[i] = hann
		case Povey:
			c[i] = math.Pow(hann, 0.85)
		default:
			return nil, ErrUnknownWindow
		}
	}
	return c, nil
}

// melScale is the natural-log mel scale used by Kaldi.
func melScale(hz float64) float64 {
	return 1127.0 * math.Log(1.0+hz/700.0)
}

func inverseMelScale(mel float64) float64 {
	return 700.0 * (math.Exp(mel/1127.0) - 1.0)
}

// filter is one triangular mel filter stored sparsely: weights apply to
// power-spectrum bins first, first+1, ...
type filter struct {
	first   int
	weights []float64
	center  float64 // Hz
}

// melBank builds triangles that are linear in the mel domain, evaluated at
// each FFT bin centre.
func melBank(numMels, fftSize, sampleRate int, low, high float64) []filter {
	bins := fftSize / 2
	binHz := float64(sampleRate) / float64(fftSize)
	lowMel, highMel := melScale(low), melScale(high)
	delta := (highMel - lowMel) / float64(numMels+1)

	bank := make([]filter, numMels)
	for m := range bank {
		left := lowMel + float64(m)*delta
		center := left + delta
		right := center + delta

		f := filter{first: -1, center: inverseMelScale(center)}
		for k := 0; k < bins; k++ {
			mel := melScale(binHz * float64(k))
			if mel <= left || mel >= right {
				if f.first >= 0 {
					break
				}
				continue
			}
			w := (mel - left) / delta
			if mel > center {
				w = (right - mel) / delta
			}
			if f.first < 0 {
				f.first = k
			}
			f.weights = append(f.weights, w)
		}
		if f.first < 0 {
			f.first = 0
		}
		bank[m] = f
	}
	return bank
}

func (f filter) apply(power []float64) float64 {
	var sum float64
	for i, w := range f.weights {
		sum += w * power[f.first+i]
	}
	return sum
}
