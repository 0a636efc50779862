// seed_afip genera el script SQL para poblar la configuración fiscal de las
// sucursales a partir del CSV exportado del sistema de legajos (separado por
// punto y coma, codificado en ISO-8859-1 como los exportes de AFIP).
//
// Formato esperado (con encabezado): branch_id;cuit;pto_vta;monotributo
//
// Uso: go run ./cmd/seed_afip [ruta/sucursales.csv]
// Por defecto busca sucursales.csv en el directorio actual.
// Escribe: internal/infrastructure/postgres/migrations/002_seed_branch_configs.sql
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/tu-usuario/facturacion-pro/pkg/afip"
)

type branchRow struct {
	branchID    string
	cuit        string
	ptoVta      int
	monotributo bool
}

func main() {
	csvPath := "sucursales.csv"
	if len(os.Args) > 1 {
		csvPath = os.Args[1]
	}
	f, err := os.Open(csvPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Abrir CSV: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	reader := csv.NewReader(transform.NewReader(f, charmap.ISO8859_1.NewDecoder()))
	reader.Comma = ';'
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Leer CSV: %v\n", err)
		os.Exit(1)
	}

	var rows []branchRow
	for i, rec := range records {
		if i == 0 && strings.EqualFold(strings.TrimSpace(rec[0]), "branch_id") {
			continue // encabezado
		}
		if len(rec) < 4 {
			fmt.Fprintf(os.Stderr, "Fila %d incompleta, se omite\n", i+1)
			continue
		}
		cuit, err := afip.NormalizeCUIT(strings.TrimSpace(rec[1]))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Fila %d: %v, se omite\n", i+1, err)
			continue
		}
		ptoVta, err := strconv.Atoi(strings.TrimSpace(rec[2]))
		if err != nil || ptoVta <= 0 {
			fmt.Fprintf(os.Stderr, "Fila %d: punto de venta inválido %q, se omite\n", i+1, rec[2])
			continue
		}
		mono := strings.EqualFold(strings.TrimSpace(rec[3]), "si") ||
			strings.EqualFold(strings.TrimSpace(rec[3]), "true") ||
			strings.TrimSpace(rec[3]) == "1"
		rows = append(rows, branchRow{
			branchID:    strings.TrimSpace(rec[0]),
			cuit:        cuit,
			ptoVta:      ptoVta,
			monotributo: mono,
		})
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stderr, "Sin filas válidas, no se genera script")
		os.Exit(1)
	}

	moduleRoot := findModuleRoot()
	outPath := filepath.Join(moduleRoot, "internal", "infrastructure", "postgres", "migrations", "002_seed_branch_configs.sql")
	out, err := os.Create(outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Crear archivo: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()

	out.WriteString("-- Configuración fiscal por sucursal\n")
	out.WriteString("-- Generado desde sucursales.csv (legajos)\n\n")
	for _, r := range rows {
		fmt.Fprintf(out, "INSERT INTO branch_fiscal_configs (id, branch_id, cuit, pto_vta, issuer_monotributo, is_active)\n")
		fmt.Fprintf(out, "VALUES (gen_random_uuid(), '%s', '%s', %d, %t, true)\n",
			escapeSQL(r.branchID), r.cuit, r.ptoVta, r.monotributo)
		out.WriteString("ON CONFLICT DO NOTHING;\n")
	}

	fmt.Printf("Generado %s: %d sucursales\n", outPath, len(rows))
}

func escapeSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func findModuleRoot() string {
	dir, _ := os.Getwd()
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}
