// Package sandbox 提供 Kruise 沙箱服务的 Go SDK，用于管理安全隔离的云端沙箱环境。
//
// 沙箱服务是一款专为 AI Agent 场景设计的运行时基础设施，提供安全隔离的云端环境来执行
// AI 生成的代码。沙箱运行在 Kubernetes 集群中，通过统一网关对外暴露控制面 API 和
// 沙箱内服务端口，支持暂停/恢复以持久化文件系统状态。
//
// # 核心概念
//
//   - Sandbox: 隔离的云端执行环境，支持 running、pausing、paused 三种状态
//   - Template: 预构建的沙箱环境定义，包含基础镜像、依赖和启动命令
//   - agent runtime: 运行在沙箱内部的守护进程，提供命令执行和文件系统操作
//   - 网关: 集群入口，控制面路径为 /kruise/api，沙箱端口路径为 /kruise/{sandboxID}/{port}
//
// # 快速开始
//
// 创建客户端并启动沙箱:
//
//	c, err := sandbox.NewClient(&sandbox.Config{
//	    APIKey: os.Getenv("KRUISE_API_KEY"),
//	    Domain: "gateway.example.com",
//	})
//
//	timeout := int32(120)
//	sb, _, err := c.CreateAndWait(ctx, sandbox.CreateParams{
//	    TemplateID: "code-interpreter",
//	    Timeout:    &timeout,
//	}, sandbox.WithPollInterval(2*time.Second))
//
//	defer sb.Kill(ctx)
//
// # 沙箱生命周期
//
// Client 提供沙箱的创建、连接和列表操作:
//
//   - [Client.Create] / [Client.CreateAndWait]: 创建沙箱（后者会轮询等待就绪）
//   - [Client.Connect]: 连接到已有沙箱，可恢复已暂停的沙箱；沙箱处于 pausing
//     状态时按固定间隔重试，直至状态收敛
//   - [Client.List] / [Client.ListAll]: 列出沙箱，支持按状态和元数据过滤
//   - [Client.KillAll]: 批量终止匹配过滤条件的沙箱
//
// Sandbox 实例提供生命周期管理:
//
//   - [Sandbox.Kill]: 终止沙箱（沙箱已不存在时同样视为成功）
//   - [Sandbox.Pause]: 暂停沙箱（保留文件系统状态）
//   - [Sandbox.SetTimeout]: 更新超时时间
//   - [Sandbox.Refresh]: 延长存活时间
//   - [Sandbox.GetInfo] / [Sandbox.IsRunning]: 查询沙箱状态
//   - [Sandbox.WaitForReady]: 轮询等待沙箱进入 running 状态
//
// # 代码执行
//
// 通过 [Sandbox.RunCode] 在沙箱解释器中执行代码:
//
//	execution, err := sb.RunCode(ctx, "print(1 + 1)")
//	fmt.Println(execution.TextOutput())
//
// 代码抛出的异常记录在 [Execution] 的 Error 字段中，属于语义结果；
// 传输层失败由 SDK 做有界重试。支持 [WithOnCodeStdout] / [WithOnCodeStderr] /
// [WithOnResult] / [WithOnError] 实时回调。
//
// # 命令执行
//
// 通过 [Sandbox.Commands] 在沙箱内执行终端命令:
//
//	// 同步执行
//	result, err := sb.Commands().Run(ctx, "echo hello",
//	    sandbox.WithEnvs(map[string]string{"MY_VAR": "value"}),
//	    sandbox.WithCwd("/tmp"),
//	    sandbox.WithTimeout(5*time.Second),
//	)
//	fmt.Println(result.Stdout)
//
//	// 异步执行（后台命令）
//	handle, err := sb.Commands().Start(ctx, "sleep 30", sandbox.WithTag("bg"))
//	handle.WaitPID(ctx)
//	handle.Kill(ctx)
//
// 命令以非零状态退出时 Run 返回 [*CommandExitError]，这是语义结果，不会被重试。
// Commands 支持实时输出回调（[WithOnStdout] / [WithOnStderr]）、后台命令管理
// （[Commands.Start] / [Commands.List] / [Commands.Kill]）以及标准输入发送
// （[Commands.SendStdin]）。
//
// # 文件系统操作
//
// 通过 [Sandbox.Files] 进行文件读写:
//
//	sb.Files().Write(ctx, "/tmp/hello.txt", []byte("Hello!"))
//	content, err := sb.Files().Read(ctx, "/tmp/hello.txt")
//
//	sb.Files().MakeDir(ctx, "/tmp/mydir")
//	entries, err := sb.Files().List(ctx, "/tmp")
//
//	wh, err := sb.Files().WatchDir(ctx, "/tmp/watch", sandbox.WithRecursive(true))
//	for ev := range wh.Events() {
//	    fmt.Printf("event: %s %s\n", ev.Type, ev.Name)
//	}
//
// # 网络访问
//
// 使用 [Sandbox.GetHost] 获取外部访问沙箱指定端口的地址。自建部署下地址形如
// {domain}/kruise/{sandboxID}/{port}，公有服务下形如 {port}-{sandboxID}.{domain}。
//
// # 重试语义
//
// SDK 区分传输故障和语义结果:
//
//   - [Client.Connect] 在目标沙箱处于 pausing 状态时重试（最多 30 次，间隔 2 秒）
//   - [Sandbox.RunCode] 和 [Commands.Run] 在传输层失败时重试（最多 5 次，间隔 5 秒）
//   - 命令非零退出、代码异常和资源不存在错误不会触发重试
//
// 重试耗尽后返回 [RetryExhaustedError]，包装最后一次的底层错误。
//
// # 轮询选项
//
// [Client.CreateAndWait] 和 [Sandbox.WaitForReady] 支持通过 [PollOption]
// 自定义轮询行为:
//
//   - [WithPollInterval]: 设置轮询间隔
//   - [WithPollBackoff]: 启用指数退避
//   - [WithOnPoll]: 注册轮询回调（用于日志或进度展示）
package sandbox
