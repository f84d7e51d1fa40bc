package catalog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/tbourn/go-repair-backend/internal/domain"
)

// LoadSeedFile reads businesses from a markdown table at path. See
// ParseSeed for the format.
func LoadSeedFile(path string) ([]domain.Business, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseSeed(f)
}

// ParseSeed reads businesses from the first markdown table in r. The header
// row names the columns; recognised names are name, description, address,
// phone, services (comma separated), priceStarting, rating and ownerId, in
// any order and case. Separator rows and rows without a name are skipped.
// Lines outside the table are ignored.
func ParseSeed(r io.Reader) ([]domain.Business, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var header []string
	var out []domain.Business
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "|") || !strings.HasSuffix(line, "|") {
			if header != nil && len(out) > 0 {
				break
			}
			continue
		}
		cells := splitRow(line)
		if isSeparator(cells) {
			continue
		}
		if header == nil {
			header = make([]string, len(cells))
			for i, c := range cells {
				header[i] = strings.ToLower(c)
			}
			continue
		}
		b, err := rowToBusiness(header, cells)
		if err != nil {
			return nil, fmt.Errorf("seed line %d: %w", lineNo, err)
		}
		if b.Name != "" {
			out = append(out, b)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func splitRow(line string) []string {
	cols := strings.Split(strings.Trim(line, "|"), "|")
	for i, c := range cols {
		cols[i] = strings.TrimSpace(c)
	}
	return cols
}

func isSeparator(cells []string) bool {
	for _, c := range cells {
		tmp := strings.ReplaceAll(c, ":", "")
		tmp = strings.ReplaceAll(tmp, "-", "")
		if strings.TrimSpace(tmp) != "" {
			return false
		}
	}
	return true
}

func rowToBusiness(header, cells []string) (domain.Business, error) {
	b := domain.Business{Services: []string{}}
	for i, col := range header {
		if i >= len(cells) {
			break
		}
		v := cells[i]
		switch col {
		case "name":
			b.Name = v
		case "description":
			b.Description = v
		case "address":
			b.Address = v
		case "phone":
			b.Phone = v
		case "ownerid":
			b.OwnerID = v
		case "services":
			for _, s := range strings.Split(v, ",") {
				if s = strings.TrimSpace(s); s != "" {
					b.Services = append(b.Services, s)
				}
			}
		case "pricestarting":
			if v == "" {
				continue
			}
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				return b, fmt.Errorf("invalid priceStarting %q", v)
			}
			b.PriceStarting = n
		case "rating":
			if v == "" {
				continue
			}
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return b, fmt.Errorf("invalid rating %q", v)
			}
			b.Rating = f
		}
	}
	return b, nil
}
