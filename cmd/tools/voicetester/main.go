package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/zhouzirui/voice-agent/backend/internal/audio"
	"github.com/zhouzirui/voice-agent/backend/internal/config"
	speechmodel "github.com/zhouzirui/voice-agent/backend/internal/model/speech"
	"github.com/zhouzirui/voice-agent/backend/internal/service/ai"
	"github.com/zhouzirui/voice-agent/backend/internal/service/chat"
	"github.com/zhouzirui/voice-agent/backend/internal/service/speech"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	mode := flag.String("mode", "", "测试模式: stt、tts、query 或 chat")
	audioPath := flag.String("audio", "", "stt/query/chat 输入音频文件路径")
	text := flag.String("text", "", "tts 输入文本")
	outputPath := flag.String("out", "", "tts 输出音频文件路径 (默认自动生成)")
	outDir := flag.String("out-dir", cfg.Server.UploadsDir, "query/chat 生成音频的目录")
	voice := flag.String("voice", "", "TTS 声音 ID，默认使用配置中的音色")
	session := flag.String("session", "", "chat 模式的 sessionID，留空则自动生成")
	timeout := flag.Duration("timeout", 3*time.Minute, "整体超时时间")

	flag.Parse()

	switch *mode {
	case "stt", "tts", "query", "chat":
	default:
		flag.Usage()
		log.Fatal("请通过 -mode 指定 stt、tts、query 或 chat")
	}

	if missing := cfg.ProvidersMissing(requiredProviders(*mode)...); len(missing) > 0 {
		log.Fatalf("缺少以下服务的凭证: %v", missing)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	httpClient := &http.Client{}
	transcriber := speech.NewAssemblyAIClient(speechmodel.TranscriberConfig{
		APIKey:       cfg.Speech.AssemblyAIKey,
		BaseURL:      cfg.Speech.AssemblyAIBaseURL,
		PollInterval: cfg.Speech.PollInterval,
		Timeout:      cfg.Speech.STTTimeout,
	}, httpClient)
	synthesizer := speech.NewMurfClient(speechmodel.SynthesizerConfig{
		APIKey:      cfg.Speech.MurfKey,
		BaseURL:     cfg.Speech.MurfBaseURL,
		Timeout:     cfg.Speech.TTSTimeout,
		SampleRate:  cfg.Speech.SampleRate,
		ChannelType: cfg.Speech.ChannelType,
	}, httpClient)

	switch *mode {
	case "stt":
		runSTT(ctx, transcriber, mustReadAudio(*audioPath))
	case "tts":
		if *voice == "" {
			*voice = cfg.Speech.TTSDefaultVoice
		}
		runTTS(ctx, synthesizer, *text, *voice, *outputPath)
	case "query", "chat":
		if *voice == "" {
			*voice = cfg.Speech.EchoDefaultVoice
		}
		generator, err := ai.NewGenerator(ctx, cfg.AI)
		if err != nil {
			log.Fatalf("初始化大模型失败: %v", err)
		}
		store := chat.NewFileStore(cfg.Storage.ChatHistoryFile)
		if err := store.Load(ctx); err != nil {
			log.Fatalf("加载会话历史失败: %v", err)
		}
		chain := speech.NewChain(transcriber, generator, synthesizer, chat.NewService(store), nil, speech.ChainOptions{
			UploadsDir: *outDir,
			ChunkLimit: cfg.Speech.ChunkLimit,
			Format:     audio.Format{SampleRate: cfg.Speech.SampleRate, Channels: cfg.Speech.Channels()},
		})
		if *mode == "query" {
			runQuery(ctx, chain, mustReadAudio(*audioPath), *voice)
		} else {
			runChat(ctx, chain, *session, mustReadAudio(*audioPath), *voice)
		}
	}
}

func requiredProviders(mode string) []config.Provider {
	switch mode {
	case "stt":
		return []config.Provider{config.ProviderSTT}
	case "tts":
		return []config.Provider{config.ProviderTTS}
	default:
		return []config.Provider{config.ProviderSTT, config.ProviderLLM, config.ProviderTTS}
	}
}

func mustReadAudio(path string) []byte {
	if path == "" {
		log.Fatal("该模式需要通过 -audio 指定音频文件路径")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("读取音频文件失败: %v", err)
	}
	return data
}

func runSTT(ctx context.Context, transcriber *speech.AssemblyAIClient, data []byte) {
	log.Printf("开始进行 STT 测试: bytes=%d", len(data))
	start := time.Now()

	text, err := transcriber.Transcribe(ctx, data)
	if err != nil {
		log.Fatalf("STT 调用失败: %v", err)
	}

	log.Printf("STT 识别成功: text=%q elapsed=%s", text, time.Since(start).Round(time.Millisecond))
}

func runTTS(ctx context.Context, synthesizer *speech.MurfClient, text, voice, outputPath string) {
	if strings.TrimSpace(text) == "" {
		log.Fatal("TTS 模式需要通过 -text 提供待合成文本")
	}
	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.mp3", time.Now().Unix())
	}

	log.Printf("开始进行 TTS 测试: voice=%s", voice)

	data, err := synthesizer.Synthesize(ctx, text, voice)
	if err != nil {
		log.Fatalf("TTS 调用失败: %v", err)
	}

	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		log.Fatalf("写入音频文件失败: %v", err)
	}

	log.Printf("TTS 合成成功: 输出文件 %s, 大小=%d bytes", outputPath, len(data))
}

func runQuery(ctx context.Context, chain *speech.Chain, data []byte, voice string) {
	out, err := chain.Query(ctx, speech.QueryInput{Audio: data, VoiceID: voice})
	if err != nil {
		log.Fatalf("query 失败 (stage=%s): %v", speech.StageOf(err), err)
	}
	log.Printf("query 成功: transcript=%q reply=%q audio=%s", out.Transcript, out.LLMText, out.AudioURL)
}

func runChat(ctx context.Context, chain *speech.Chain, sessionID string, data []byte, voice string) {
	if sessionID == "" {
		sessionID = fmt.Sprintf("manual-%d", time.Now().UnixNano())
	}
	out, err := chain.Chat(ctx, speech.ChatInput{SessionID: sessionID, Audio: data, VoiceID: voice})
	if err != nil {
		log.Fatalf("chat 失败 (stage=%s): %v", speech.StageOf(err), err)
	}
	log.Printf("chat 成功: session=%s turns=%d reply=%q audio=%s", sessionID, len(out.History), out.ResponseText, out.AudioURL)
}
