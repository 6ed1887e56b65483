// Copyright 2024-2026 Aiku AI

package router

import "strings"

const (
	pongText = "🏓 Pong! Bot online e funcionando."
	helpText = "🤖 *Bot de Figurinhas*\n\n" +
		"- Envie uma imagem para convertê-la em figurinha\n" +
		"- Envie um vídeo curto para criar uma figurinha animada\n" +
		"- Envie várias imagens e todas serão convertidas\n" +
		"- Digite *ping* para verificar se estou online\n" +
		"- Digite *ajuda* ou *help* para ver esta mensagem"
	hintText = "👋 Olá! Envie uma imagem ou vídeo para que eu a converta em figurinha.\n" +
		"Digite *ajuda* para ver os comandos disponíveis."
)

// commandReply returns the reply for a text message. Commands match the
// whole trimmed text, case-insensitively.
func commandReply(text string) (name, reply string) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "ping":
		return "ping", pongText
	case "ajuda", "help":
		return "help", helpText
	default:
		return "hint", hintText
	}
}
