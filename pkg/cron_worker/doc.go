// Package cron_worker executa jobs periódicos do relay (hoje, o polling de
// breakpoints do code monitoring) sobre github.com/robfig/cron/v3.
//
// O worker não trata sinais: quem o inicia controla o ciclo de vida pelo
// contexto passado a Start, da mesma forma que o servidor HTTP é encerrado.
//
// Exemplo:
//
//	worker, err := cron_worker.New(o11y,
//	    cron_worker.WithServiceName("trace-relay-worker"),
//	    cron_worker.WithRunOnStart(true),
//	)
//	if err != nil {
//	    return err
//	}
//
//	job := cron_worker.NewIntervalJob("breakpoint-poll", 30*time.Second, poller.Poll)
//	if err := worker.RegisterJobs(job); err != nil {
//	    return err
//	}
//
//	go worker.Start(ctx) // retorna quando ctx é cancelado
package cron_worker
