// Copyright 2024-2026 Aiku AI

package pipeline

import "fmt"

func progressText(n int) string {
	return fmt.Sprintf("⏳ Criando %d figurinha(s)...", n)
}

func apologyText(err error) string {
	return fmt.Sprintf("❌ Erro ao criar figurinha. Detalhes do erro: %s", err)
}

// summaryText returns the closing report for a settled batch, or false when
// the delivered sticker is feedback enough.
func summaryText(res BatchResult) (string, bool) {
	switch {
	case res.Failed > 0:
		return fmt.Sprintf("✅ %d figurinha(s) criada(s) com sucesso.\n❌ %d falha(s).", res.Succeeded, res.Failed), true
	case res.Succeeded > 1:
		return fmt.Sprintf("🎉 Todas as %d figurinhas foram criadas com sucesso!", res.Succeeded), true
	default:
		return "", false
	}
}
