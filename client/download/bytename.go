package download

import "fmt"

// ByteName renders a byte count in human-scaled 1024-based units, the
// way the transfer log lines report sizes and rates: "512 bytes",
// "1.5 Kbytes", "2 Mbytes". The unit is pluralized only when the
// scaled magnitude exceeds one.
func ByteName(size float64) string {
	units := []string{"", "K", "M", "G", "T", "P", "E"}

	i := 0
	for 1024 < size && i < len(units)-1 {
		size /= 1024
		i++
	}

	plural := ""
	if size > 1 {
		plural = "s"
	}

	return fmt.Sprintf("%g %sbyte%s", size, units[i], plural)
}
