// Copyright 2024-2026 Aiku AI

// Package sticker turns still images and short video clips into WebP
// stickers: the content is fitted inside a square transparent canvas, and
// videos are first reduced to a palette-optimized GIF by ffmpeg. Stickers are
// lossy at a fixed quality unless lossless output is requested.
package sticker
