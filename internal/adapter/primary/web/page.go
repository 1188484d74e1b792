package web

import "net/http"

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(dockPage))
}

const dockPage = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>obsdock</title>
    <style>
        body { font-family: sans-serif; max-width: 640px; margin: 30px auto; padding: 20px; background: #1e1f26; color: #ddd; }
        h1 { font-size: 1.4em; }
        .info { background: #2b2d38; padding: 12px; border-radius: 5px; margin: 16px 0; }
        .scene { display: block; width: 100%; text-align: left; margin: 4px 0; }
        .scene.live { background: #c0392b; }
        button { background: #3d6fd8; color: white; border: none; padding: 8px 16px; border-radius: 5px; cursor: pointer; }
        button:hover { background: #2c56ad; }
        input { padding: 6px; margin: 4px; }
        #log { font-family: monospace; font-size: 0.85em; white-space: pre-wrap; max-height: 160px; overflow-y: auto; }
    </style>
</head>
<body>
    <h1>obsdock</h1>
    <div class="info" id="status">Loading...</div>
    <div>
        <input id="address" placeholder="localhost:4455">
        <input id="password" type="password" placeholder="password">
        <button onclick="connect()">Connect</button>
        <button onclick="post('/api/disconnect')">Disconnect</button>
    </div>
    <div style="margin-top: 16px;">
        <button onclick="act({type: 'toggleStream'})">Toggle stream</button>
        <button onclick="act({type: 'toggleRecord'})">Toggle record</button>
    </div>
    <div id="scenes" style="margin-top: 16px;"></div>
    <div class="info" id="log"></div>
    <script>
        function render(view) {
            let status = 'State: ' + view.state;
            if (view.lastError) {
                status += '<br>Error: ' + view.lastError;
            }
            const snap = view.snapshot;
            if (snap) {
                status += '<br>Program: ' + snap.currentProgramScene;
                status += '<br>Stream: ' + (snap.stream.outputActive ? 'live' : 'off');
                status += ' / Record: ' + (snap.record.outputActive ? 'on' : 'off');
            }
            document.getElementById('status').innerHTML = status;
            const box = document.getElementById('scenes');
            box.innerHTML = '';
            if (!snap) return;
            for (const scene of snap.scenes) {
                const b = document.createElement('button');
                b.className = 'scene' + (scene.name === snap.currentProgramScene ? ' live' : '');
                b.textContent = scene.name;
                b.onclick = () => act({type: 'setCurrentProgramScene', sceneName: scene.name});
                box.appendChild(b);
            }
        }

        function log(line) {
            const el = document.getElementById('log');
            el.textContent = line + '\n' + el.textContent;
        }

        async function loadState() {
            const res = await fetch('/api/state');
            render(await res.json());
        }

        async function post(path, body) {
            const res = await fetch(path, {
                method: 'POST',
                headers: {'Content-Type': 'application/json'},
                body: body ? JSON.stringify(body) : undefined
            });
            const data = await res.json();
            if (data.message || data.error) log((data.message || '') + (data.error ? ': ' + data.error : ''));
            await loadState();
        }

        function connect() {
            const address = document.getElementById('address').value;
            const password = document.getElementById('password').value;
            post('/api/connect', address ? {address, password} : undefined);
        }

        function act(action) {
            post('/api/actions', action);
        }

        function listen() {
            const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/api/events');
            ws.onmessage = (msg) => {
                const n = JSON.parse(msg.data);
                if (n.event) {
                    log(n.event.eventType);
                }
                loadState();
            };
            ws.onclose = () => setTimeout(listen, 3000);
        }

        loadState();
        listen();
    </script>
</body>
</html>`
