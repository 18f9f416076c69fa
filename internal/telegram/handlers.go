package telegram

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"portfobot/internal/chat"
	"portfobot/internal/excel"
	"portfobot/internal/storage"
)

var (
	reHelp   = regexp.MustCompile(`^/(help|start)(?:@[\w_]+)?$`)
	reReset  = regexp.MustCompile(`^/reset(?:@[\w_]+)?$`)
	reSheets = regexp.MustCompile(`^/sheets(?:@[\w_]+)?$`)
	reStats  = regexp.MustCompile(`^/stats(?:@[\w_]+)?$`)
)

const (
	maxUploadBytes = 20 << 20 // Telegram bot API file download limit
	turnTimeout    = 120 * time.Second
	uploadTimeout  = 60 * time.Second
)

type Handlers struct {
	api          *tgbotapi.BotAPI
	store        *storage.Store
	dispatcher   *chat.Dispatcher
	sessions     *chat.Sessions
	chunkSize    int
	chunkOverlap int
	http         *http.Client
}

func NewHandlers(api *tgbotapi.BotAPI, store *storage.Store, dispatcher *chat.Dispatcher, sessions *chat.Sessions, chunkSize, chunkOverlap int) *Handlers {
	return &Handlers{
		api:          api,
		store:        store,
		dispatcher:   dispatcher,
		sessions:     sessions,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		http:         &http.Client{Timeout: 45 * time.Second},
	}
}

func (h *Handlers) HandleMessage(m *tgbotapi.Message) {
	if m.Document != nil {
		h.handleDocument(m)
		return
	}

	txt := strings.TrimSpace(m.Text)
	if txt == "" {
		return
	}

	switch {
	case reHelp.MatchString(txt):
		h.handleHelp(m.Chat.ID)
	case reReset.MatchString(txt):
		h.sessions.Reset(m.Chat.ID)
		h.reply(m.Chat.ID, "Session cleared. Upload a statement or workbook to start fresh.")
	case reSheets.MatchString(txt):
		h.handleSheets(m.Chat.ID)
	case reStats.MatchString(txt):
		h.handleStats(m.Chat.ID)
	default:
		h.handleChat(m)
	}
}

// handleChat runs one assistant turn for a free-form message.
func (h *Handlers) handleChat(m *tgbotapi.Message) {
	txt := strings.TrimSpace(m.Text)
	_ = h.store.SaveMessage(m.Chat.ID, m.From.ID, "user", txt, int64(m.Date))

	typing := tgbotapi.NewChatAction(m.Chat.ID, tgbotapi.ChatTyping)
	h.api.Send(typing)

	ctx, cancel := context.WithTimeout(context.Background(), turnTimeout)
	defer cancel()

	sess := h.sessions.Get(m.Chat.ID)
	sess.Lock()
	res, err := h.dispatcher.RunTurn(ctx, sess, txt)
	sess.Unlock()
	if err != nil {
		log.Printf("telegram: turn failed for chat %d: %v", m.Chat.ID, err)
		h.reply(m.Chat.ID, "Sorry, something went wrong handling that. Please try again.")
		return
	}

	now := time.Now().Unix()
	for _, tc := range res.ToolCalls {
		_ = h.store.RecordToolCall(m.Chat.ID, tc.Name, !tc.Err, now)
	}

	for _, img := range res.Images {
		photo := tgbotapi.NewPhoto(m.Chat.ID, tgbotapi.FileBytes{Name: img.Name, Bytes: img.PNG})
		h.api.Send(photo)
	}

	if res.Reply != "" {
		_ = h.store.SaveMessage(m.Chat.ID, 0, "assistant", res.Reply, now)
		msg := tgbotapi.NewMessage(m.Chat.ID, res.Reply)
		msg.ParseMode = "Markdown"
		if _, err := h.api.Send(msg); err != nil {
			// Markdown in LLM output is not always valid Telegram markdown.
			h.reply(m.Chat.ID, res.Reply)
		}
	}
}

// handleDocument ingests an uploaded PDF statement or Excel workbook into
// the chat's session.
func (h *Handlers) handleDocument(m *tgbotapi.Message) {
	name := m.Document.FileName
	lower := strings.ToLower(name)
	isPDF := strings.HasSuffix(lower, ".pdf")
	isXLSX := strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xlsm")
	if !isPDF && !isXLSX {
		h.reply(m.Chat.ID, "I can read PDF statements and Excel (.xlsx) workbooks. Other file types are not supported.")
		return
	}
	if m.Document.FileSize > maxUploadBytes {
		h.reply(m.Chat.ID, "That file is too large to download (20 MB limit).")
		return
	}

	data, err := h.download(m.Document.FileID)
	if err != nil {
		log.Printf("telegram: download %s failed: %v", name, err)
		h.reply(m.Chat.ID, "Downloading the file failed. Please try sending it again.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
	defer cancel()

	sess := h.sessions.Get(m.Chat.ID)
	sess.Lock()
	defer sess.Unlock()

	if isPDF {
		n, err := sess.Index.AddPDF(ctx, name, data, h.chunkSize, h.chunkOverlap)
		if err != nil {
			log.Printf("telegram: indexing %s failed: %v", name, err)
			h.reply(m.Chat.ID, "I could not read that PDF. Is it a text-based statement (not a scan)?")
			return
		}
		if n == 0 {
			h.reply(m.Chat.ID, fmt.Sprintf("%s held no new readable text (already indexed, or a scanned image).", name))
			return
		}
		h.reply(m.Chat.ID, fmt.Sprintf("Indexed %s (%d passages). Ask me anything about it.", name, n))
		return
	}

	wb, err := excel.LoadWorkbook(name, data)
	if err != nil {
		log.Printf("telegram: parsing %s failed: %v", name, err)
		h.reply(m.Chat.ID, "I could not parse that workbook. Please check the file and try again.")
		return
	}
	sess.Workbook = wb

	sheets := make(map[string]string, len(wb.Order))
	for _, s := range wb.Order {
		sheets[s] = wb.Sheets[s].CSV()
	}
	if _, err := sess.Index.AddSheets(ctx, name, sheets, h.chunkSize, h.chunkOverlap); err != nil {
		// The workbook still works for the Excel tools; only retrieval misses it.
		log.Printf("telegram: embedding sheets of %s failed: %v", name, err)
	}
	h.reply(m.Chat.ID, fmt.Sprintf("Loaded %s with sheets: %s.", name, strings.Join(wb.Order, ", ")))
}

func (h *Handlers) download(fileID string) ([]byte, error) {
	url, err := h.api.GetFileDirectURL(fileID)
	if err != nil {
		return nil, err
	}
	resp, err := h.http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxUploadBytes+1))
}

func (h *Handlers) handleSheets(chatID int64) {
	sess := h.sessions.Get(chatID)
	sess.Lock()
	defer sess.Unlock()
	if sess.Workbook == nil {
		h.reply(chatID, "No workbook loaded. Send me an .xlsx file first.")
		return
	}
	h.reply(chatID, fmt.Sprintf("%s sheets: %s", sess.Workbook.FileName, strings.Join(sess.Workbook.Order, ", ")))
}

func (h *Handlers) handleStats(chatID int64) {
	n, err := h.store.CountMessages(chatID)
	if err != nil {
		h.reply(chatID, "Stats failed: "+err.Error())
		return
	}
	usage, err := h.store.FetchToolUsage(chatID)
	if err != nil {
		h.reply(chatID, "Stats failed: "+err.Error())
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Messages stored: %d\n", n)
	if len(usage) == 0 {
		sb.WriteString("No tool calls yet.")
	} else {
		sb.WriteString("Tool calls:\n")
		for _, u := range usage {
			fmt.Fprintf(&sb, "- %s: %d (%d failed)\n", u.Tool, u.Calls, u.Fails)
		}
	}
	h.reply(chatID, sb.String())
}

func (h *Handlers) handleHelp(chatID int64) {
	help := "I am PortfoBot, a portfolio analysis assistant.\n\n" +
		"Send me a PDF statement or an Excel (.xlsx) workbook, then ask questions in plain language:\n" +
		"- \"What is my asset allocation? Show it as a pie chart.\"\n" +
		"- \"Calculate the annualized return and volatility of the Alpha fund.\"\n" +
		"- \"What was AAPL's max drawdown over the last year?\"\n" +
		"- \"What's the USD/SGD rate right now?\"\n\n" +
		"Commands:\n" +
		"- /sheets - List the sheets of the loaded workbook\n" +
		"- /stats - Message and tool-call counters for this chat\n" +
		"- /reset - Forget uploaded documents and the conversation\n" +
		"- /help - This message"
	h.reply(chatID, help)
}

func (h *Handlers) reply(chatID int64, text string) {
	h.api.Send(tgbotapi.NewMessage(chatID, text))
}
