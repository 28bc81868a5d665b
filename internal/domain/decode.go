package domain

// decode.go — único lugar donde se interpreta la forma "suelta" de los enums
// que devuelve la autoridad externa. Formas aceptadas:
//   - numérico (uint8, int, uint64, *big.Int, ...): índice del enum
//   - string: nombre de la variante ("Revealing") o índice en decimal
//   - objeto variant: {"variant": {"Revealing": {}}} o {"activeVariant": "Revealing"}
// Cualquier otra cosa cae al fallback (PhaseUnknown / SideNone).

import (
	"math/big"
	"sort"
	"strconv"
	"strings"
)

// DecodePhase interpreta el valor crudo de la fase. Nunca falla.
func DecodePhase(raw any) Phase {
	if idx, ok := enumIndex(raw); ok {
		if idx > uint64(PhaseCancelled) {
			return PhaseUnknown
		}
		return Phase(idx)
	}
	if name, ok := variantName(raw); ok {
		for p, n := range phaseNames {
			if strings.EqualFold(n, name) {
				return p
			}
		}
	}
	return PhaseUnknown
}

// DecodeSide interpreta el valor crudo del outcome. Nunca falla.
func DecodeSide(raw any) Side {
	if idx, ok := enumIndex(raw); ok {
		if idx <= uint64(SideDown) {
			return Side(idx)
		}
		return SideNone
	}
	if name, ok := variantName(raw); ok {
		switch strings.ToLower(name) {
		case "up":
			return SideUp
		case "down":
			return SideDown
		}
	}
	return SideNone
}

// enumIndex extrae un índice numérico si raw tiene forma numérica.
func enumIndex(raw any) (uint64, bool) {
	switch v := raw.(type) {
	case Phase:
		return uint64(v), true
	case Side:
		return uint64(v), true
	case uint8:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uint64:
		return v, true
	case uint:
		return uint64(v), true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	case float64: // JSON numbers
		if v < 0 || v != float64(uint64(v)) {
			return 0, false
		}
		return uint64(v), true
	case *big.Int:
		if v == nil || v.Sign() < 0 || !v.IsUint64() {
			return 0, false
		}
		return v.Uint64(), true
	case string:
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// variantName extrae el nombre de la variante activa.
func variantName(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		s := strings.TrimSpace(v)
		return s, s != ""
	case map[string]any:
		if active, ok := v["activeVariant"].(string); ok && active != "" {
			return active, true
		}
		if inner, ok := v["variant"].(map[string]any); ok {
			return activeKey(inner)
		}
	}
	return "", false
}

// activeKey devuelve la única key con valor no-nil del objeto variant.
// Las keys se recorren ordenadas para que el resultado sea determinista.
func activeKey(m map[string]any) (string, bool) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if m[k] != nil {
			return k, true
		}
	}
	if len(keys) == 1 {
		return keys[0], true
	}
	return "", false
}
