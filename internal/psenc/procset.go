package psenc

import "fmt"

// defaultProcset defines the helpers every replacement block relies
// on: terse def shortcuts, the shared image dictionary and an ink
// multiplier.
func defaultProcset() []string {
	return []string{
		"%BeginGoOPIDefaultProcSet",
		"/B {bind def} bind def",
		"/X {exch def} B",
		"/ImageDict 7 dict def",
		"/CreateImageDict{ImageDict begin /Decode X /DataSource X /ImageMatrix X",
		" /BitsPerComponent X /Height X /Width X /ImageType 1 def end}B",
		"/inkmul{",
		" array astore{1 index mul exch}forall pop",
		"}B",
		"%EndGoOPIDefaultProcSet",
	}
}

// colorizeProcset sets the process color single-channel data prints
// with. The data stays one channel; only the current color changes.
func colorizeProcset(color []float64, tint float64) []string {
	out := []string{
		"%BeginGoOPIColorProcSet",
		"/C/setcmykcolor load def",
	}
	for i := 0; i < 4; i++ {
		out = append(out, formatFloat(color[i]*tint)+" ")
	}
	out = append(out, "C", "%EndGoOPIColorProcSet")
	return out
}

// rdstrProcset builds the row-reader used by the gray image paths.
func rdstrProcset(binary bool) string {
	read := "readhexstring"
	if binary {
		read = "readstring"
	}
	return fmt.Sprintf("/rdstr{{[{currentfile}aload pop 2 index "+
		"string{%s pop}aload pop]cvx exch}repeat pop}B", read)
}
